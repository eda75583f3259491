package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxInputBytes int64 = 10 * 1024 * 1024

// DefaultSignedURLExpiry bounds how long the external generation service can
// read a private reference image.
const DefaultSignedURLExpiry = time.Hour

var (
	ErrNotConfigured    = errors.New("storage: input storage not configured")
	ErrImageTooLarge    = errors.New("storage: image exceeds the 10 MB limit")
	ErrUnsupportedImage = errors.New("storage: unsupported image type")
)

// InputStorage keeps user supplied reference images in a private MinIO/S3
// bucket. Objects are addressed by their bucket-relative path; the external
// video service only ever sees short-lived presigned URLs.
type InputStorage struct {
	client *minio.Client
	bucket string
}

// NewInputStorageFromEnv initialises InputStorage using MINIO_* environment
// variables. All of them missing means uploads are disabled and (nil, nil) is
// returned, mirroring how optional infrastructure is wired elsewhere.
func NewInputStorageFromEnv() (*InputStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &InputStorage{client: client, bucket: bucket}, nil
}

// UploadImage stores a reference image beneath video-inputs/<owner>/ and
// returns the bucket-relative object path that callers persist.
func (s *InputStorage) UploadImage(ctx context.Context, fileHeader *multipart.FileHeader, owner string) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrNotConfigured
	}
	if fileHeader == nil {
		return "", errors.New("storage: image file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxInputBytes {
		return "", ErrImageTooLarge
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("storage: open image: %w", err)
	}
	defer src.Close()

	var buffer bytes.Buffer
	written, err := io.Copy(&buffer, io.LimitReader(src, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("storage: read image: %w", err)
	}
	if written > maxInputBytes {
		return "", ErrImageTooLarge
	}

	data := buffer.Bytes()
	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !isAllowedImageContent(contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	segment := strings.Trim(strings.TrimSpace(owner), "/")
	if segment == "" {
		segment = "anonymous"
	}
	objectName := path.Join("video-inputs", segment, uuid.NewString()+imageExtension(fileHeader.Filename, contentType))

	uploadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err = s.client.PutObject(uploadCtx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload image: %w", err)
	}

	return objectName, nil
}

// SignedURL issues a temporary read URL for a stored object path. The external
// generation service cannot read the private bucket directly, so every path is
// exchanged for a presigned URL right before submission.
func (s *InputStorage) SignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrNotConfigured
	}

	objectName := normalizeObjectPath(objectPath, s.bucket)
	if objectName == "" {
		return "", errors.New("storage: object path is required")
	}
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	signed, err := s.client.PresignedGetObject(presignCtx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", objectName, err)
	}
	return signed.String(), nil
}

// Remove deletes the stored object. Missing objects are not an error.
func (s *InputStorage) Remove(ctx context.Context, objectPath string) error {
	if s == nil || s.client == nil {
		return nil
	}
	objectName := normalizeObjectPath(objectPath, s.bucket)
	if objectName == "" {
		return nil
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

func normalizeObjectPath(raw, bucket string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, "://") {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, "/")
	trimmed = strings.TrimPrefix(trimmed, bucket+"/")
	return strings.TrimPrefix(trimmed, "/")
}

func isAllowedImageContent(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return true
	case "image/jpeg", "image/pjpeg":
		return true
	case "image/webp":
		return true
	default:
		return false
	}
}

func imageExtension(filename, contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return ".png"
	case "image/jpeg", "image/pjpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext == "" {
		return ".bin"
	}
	return ext
}
