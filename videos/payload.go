package videos

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cinemagen_back/storage"
)

// Aspect ratios accepted at the API boundary and their names on the external
// service. Storyboard payloads speak the orientation vocabulary; everything
// else keeps the ratio string.
const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"

	orientationLandscape = "landscape"
	orientationPortrait  = "portrait"
)

// ErrStorageUnavailable indicates a record references uploaded images but no
// object storage is configured to sign them.
var ErrStorageUnavailable = errors.New("videos: image storage is not configured")

// SignedURLProvider resolves an uploaded object path to a URL the external
// service can fetch during generation.
type SignedURLProvider interface {
	SignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// IsValidAspect reports whether the ratio belongs to the supported set.
func IsValidAspect(ratio string) bool {
	return ratio == AspectLandscape || ratio == AspectPortrait
}

// orientationFor maps an aspect ratio to the external orientation name. The
// mapping is reversible so stored records keep the API vocabulary.
func orientationFor(ratio string) (string, error) {
	switch ratio {
	case AspectLandscape:
		return orientationLandscape, nil
	case AspectPortrait:
		return orientationPortrait, nil
	default:
		return "", fmt.Errorf("videos: unsupported aspect ratio %q", ratio)
	}
}

// aspectFor is the inverse of orientationFor.
func aspectFor(orientation string) (string, error) {
	switch orientation {
	case orientationLandscape:
		return AspectLandscape, nil
	case orientationPortrait:
		return AspectPortrait, nil
	default:
		return "", fmt.Errorf("videos: unsupported orientation %q", orientation)
	}
}

// standardInput is the task payload for single-prompt models.
type standardInput struct {
	Prompt          string   `json:"prompt"`
	AspectRatio     string   `json:"aspect_ratio"`
	Seconds         string   `json:"seconds"`
	RemoveWatermark bool     `json:"remove_watermark"`
	ImageURLs       []string `json:"image_urls,omitempty"`
}

// storyboardShot is one scene of a storyboard payload.
type storyboardShot struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

// storyboardInput is the task payload for the storyboard model.
type storyboardInput struct {
	Shots       []storyboardShot `json:"shots"`
	NFrames     int              `json:"n_frames"`
	AspectRatio string           `json:"aspect_ratio"`
	ImageURLs   []string         `json:"image_urls,omitempty"`
}

// buildTaskInput assembles the external task payload for a record. Stored
// image references are exchanged for fresh signed URLs at build time so the
// payload never carries stale links.
func buildTaskInput(ctx context.Context, video *Video, signer SignedURLProvider) (any, error) {
	if video == nil {
		return nil, errors.New("videos: video is required")
	}

	imageURLs, err := signImageRefs(ctx, video.ImagePaths(), signer)
	if err != nil {
		return nil, err
	}

	if IsStoryboardModel(video.Model) {
		orientation, err := orientationFor(video.AspectRatio)
		if err != nil {
			return nil, err
		}
		return storyboardInput{
			Shots: []storyboardShot{{
				Description: video.Prompt,
				Duration:    video.Seconds(),
			}},
			NFrames:     video.NFrames,
			AspectRatio: orientation,
			ImageURLs:   imageURLs,
		}, nil
	}

	if !IsValidAspect(video.AspectRatio) {
		return nil, fmt.Errorf("videos: unsupported aspect ratio %q", video.AspectRatio)
	}
	return standardInput{
		Prompt:          video.Prompt,
		AspectRatio:     video.AspectRatio,
		Seconds:         strconv.Itoa(video.Seconds()),
		RemoveWatermark: video.RemoveWatermark,
		ImageURLs:       imageURLs,
	}, nil
}

func signImageRefs(ctx context.Context, paths []string, signer SignedURLProvider) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if signer == nil {
		return nil, ErrStorageUnavailable
	}

	urls := make([]string, 0, len(paths))
	for _, path := range paths {
		url, err := signer.SignedURL(ctx, path, storage.DefaultSignedURLExpiry)
		if err != nil {
			return nil, fmt.Errorf("videos: sign image reference %q: %w", path, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}
