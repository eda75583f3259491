package storage

import (
	"context"
	"testing"
	"time"
)

func TestNormalizeObjectPath(t *testing.T) {
	cases := []struct {
		raw    string
		bucket string
		want   string
	}{
		{"video-inputs/7/ref.png", "inputs", "video-inputs/7/ref.png"},
		{"/inputs/video-inputs/7/ref.png", "inputs", "video-inputs/7/ref.png"},
		{"  ", "inputs", ""},
		{"https://cdn.example.com/x.png", "inputs", ""},
	}

	for _, tc := range cases {
		if got := normalizeObjectPath(tc.raw, tc.bucket); got != tc.want {
			t.Fatalf("normalizeObjectPath(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNilStorageIsSafe(t *testing.T) {
	var s *InputStorage

	if _, err := s.SignedURL(context.Background(), "video-inputs/1/a.png", time.Hour); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.UploadImage(context.Background(), nil, "1"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := s.Remove(context.Background(), "video-inputs/1/a.png"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestImageExtension(t *testing.T) {
	if ext := imageExtension("photo.jpeg", "image/png"); ext != ".png" {
		t.Fatalf("content type should win, got %q", ext)
	}
	if ext := imageExtension("photo.JPG", "application/octet-stream"); ext != ".jpg" {
		t.Fatalf("expected filename fallback, got %q", ext)
	}
	if ext := imageExtension("", ""); ext != ".bin" {
		t.Fatalf("expected .bin fallback, got %q", ext)
	}
}
