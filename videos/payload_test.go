package videos

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeSigner struct {
	calls []string
	fail  bool
}

func (f *fakeSigner) SignedURL(_ context.Context, objectPath string, _ time.Duration) (string, error) {
	if f.fail {
		return "", errors.New("signing backend down")
	}
	f.calls = append(f.calls, objectPath)
	return "https://signed.example.com/" + objectPath, nil
}

func TestOrientationMapping(t *testing.T) {
	cases := map[string]string{
		AspectLandscape: "landscape",
		AspectPortrait:  "portrait",
	}
	for ratio, want := range cases {
		got, err := orientationFor(ratio)
		if err != nil {
			t.Fatalf("orientationFor(%q): %v", ratio, err)
		}
		if got != want {
			t.Fatalf("orientationFor(%q) = %q, want %q", ratio, got, want)
		}
	}

	// The mapping round-trips, so stored records keep the API vocabulary.
	for ratio := range cases {
		orientation, err := orientationFor(ratio)
		if err != nil {
			t.Fatalf("orientationFor(%q): %v", ratio, err)
		}
		back, err := aspectFor(orientation)
		if err != nil {
			t.Fatalf("aspectFor(%q): %v", orientation, err)
		}
		if back != ratio {
			t.Fatalf("round trip %q -> %q -> %q", ratio, orientation, back)
		}
	}

	if _, err := orientationFor("4:3"); err == nil {
		t.Fatal("expected error for unsupported ratio")
	}
	if _, err := aspectFor("square"); err == nil {
		t.Fatal("expected error for unsupported orientation")
	}
}

func TestSecondsFromFrames(t *testing.T) {
	video := &Video{NFrames: 300}
	if got := video.Seconds(); got != 10 {
		t.Fatalf("Seconds() = %d, want 10", got)
	}
	if got := (&Video{}).Seconds(); got != 0 {
		t.Fatalf("zero-frame Seconds() = %d, want 0", got)
	}
}

func TestBuildTaskInputStandard(t *testing.T) {
	video := &Video{
		Model:           ModelTextToVideo,
		Prompt:          "A red fox running through fresh snow at dawn",
		AspectRatio:     AspectLandscape,
		NFrames:         10 * FramesPerSecond,
		RemoveWatermark: true,
	}

	input, err := buildTaskInput(context.Background(), video, nil)
	if err != nil {
		t.Fatalf("buildTaskInput: %v", err)
	}

	payload, ok := input.(standardInput)
	if !ok {
		t.Fatalf("expected standardInput, got %T", input)
	}
	if payload.Seconds != "10" {
		t.Fatalf("seconds = %q, want %q", payload.Seconds, "10")
	}
	if payload.AspectRatio != AspectLandscape {
		t.Fatalf("aspect ratio = %q, want %q", payload.AspectRatio, AspectLandscape)
	}
	if !payload.RemoveWatermark {
		t.Fatal("remove_watermark lost in payload")
	}
	if len(payload.ImageURLs) != 0 {
		t.Fatalf("unexpected image urls: %v", payload.ImageURLs)
	}
}

func TestBuildTaskInputSignsImageRefs(t *testing.T) {
	signer := &fakeSigner{}
	video := &Video{
		Model:       ModelImageToVideo,
		Prompt:      "Animate this landscape with drifting clouds",
		AspectRatio: AspectPortrait,
		NFrames:     5 * FramesPerSecond,
		ImageRefs:   EncodeImageRefs([]string{"video-inputs/7/ref.png"}),
	}

	input, err := buildTaskInput(context.Background(), video, signer)
	if err != nil {
		t.Fatalf("buildTaskInput: %v", err)
	}

	payload := input.(standardInput)
	if len(payload.ImageURLs) != 1 || payload.ImageURLs[0] != "https://signed.example.com/video-inputs/7/ref.png" {
		t.Fatalf("unexpected image urls: %v", payload.ImageURLs)
	}
	if len(signer.calls) != 1 || signer.calls[0] != "video-inputs/7/ref.png" {
		t.Fatalf("signer saw %v", signer.calls)
	}
}

func TestBuildTaskInputStoryboard(t *testing.T) {
	video := &Video{
		Model:       ModelProStoryboard,
		Prompt:      "Scene 1 (3s): sunrise\n\nScene 2 (5s): city waking up",
		AspectRatio: AspectPortrait,
		NFrames:     8 * FramesPerSecond,
	}

	input, err := buildTaskInput(context.Background(), video, nil)
	if err != nil {
		t.Fatalf("buildTaskInput: %v", err)
	}

	payload, ok := input.(storyboardInput)
	if !ok {
		t.Fatalf("expected storyboardInput, got %T", input)
	}
	if payload.AspectRatio != "portrait" {
		t.Fatalf("aspect ratio = %q, want portrait", payload.AspectRatio)
	}
	if payload.NFrames != 240 {
		t.Fatalf("n_frames = %d, want 240", payload.NFrames)
	}
	if len(payload.Shots) != 1 || payload.Shots[0].Duration != 8 {
		t.Fatalf("unexpected shots: %+v", payload.Shots)
	}
	if payload.Shots[0].Description != video.Prompt {
		t.Fatal("storyboard shot lost the composed prompt")
	}
}

func TestBuildTaskInputRequiresSigner(t *testing.T) {
	video := &Video{
		Model:       ModelImageToVideo,
		Prompt:      "Animate this photo of a harbour at night",
		AspectRatio: AspectLandscape,
		NFrames:     4 * FramesPerSecond,
		ImageRefs:   EncodeImageRefs([]string{"video-inputs/7/ref.png"}),
	}

	if _, err := buildTaskInput(context.Background(), video, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	if _, err := buildTaskInput(context.Background(), video, &fakeSigner{fail: true}); err == nil {
		t.Fatal("expected signing error to propagate")
	}
}

func TestModelCatalog(t *testing.T) {
	if got := ModelCost(ModelProStoryboard); got != 2 {
		t.Fatalf("storyboard cost = %d, want 2", got)
	}
	for _, model := range []string{ModelTextToVideo, ModelImageToVideo, ModelProTextToVideo, ModelProImageToVideo} {
		if got := ModelCost(model); got != 1 {
			t.Fatalf("cost(%s) = %d, want 1", model, got)
		}
	}
	if IsProModel(ModelTextToVideo) || !IsProModel(ModelProImageToVideo) {
		t.Fatal("pro model detection is wrong")
	}
	if !IsImageToVideoModel(ModelProImageToVideo) || IsImageToVideoModel(ModelProStoryboard) {
		t.Fatal("image-to-video detection is wrong")
	}
	if IsKnownModel("sora-3-unreleased") {
		t.Fatal("unknown model accepted")
	}
}

func TestEncodeImageRefs(t *testing.T) {
	if EncodeImageRefs(nil) != nil {
		t.Fatal("empty input should encode to a null column")
	}
	if EncodeImageRefs([]string{"  ", ""}) != nil {
		t.Fatal("blank refs should encode to a null column")
	}

	video := &Video{ImageRefs: EncodeImageRefs([]string{" a.png ", "b.png"})}
	paths := video.ImagePaths()
	if fmt.Sprintf("%v", paths) != "[a.png b.png]" {
		t.Fatalf("round trip produced %v", paths)
	}
}
