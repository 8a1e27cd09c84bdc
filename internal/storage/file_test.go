package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	directory := t.TempDir()

	s, err := NewFileStorage(ctx, FileConfig{Directory: directory})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("PutThenGet", func(t *testing.T) {
		url, err := s.Put(ctx, "a/b/c.txt", []byte("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := filepath.Join(directory, "a", "b", "c.txt"); url != want {
			t.Errorf("Expected %s, got %s", want, url)
		}
		if url != s.URL("a/b/c.txt") {
			t.Errorf("Expected URL to agree with Put, got %s", s.URL("a/b/c.txt"))
		}

		data, err := s.Get(ctx, url)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("Expected hello, got %s", data)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if _, err := s.Put(ctx, "x.txt", []byte("first")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		url, err := s.Put(ctx, "x.txt", []byte("second"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, _ := s.Get(ctx, url)
		if string(data) != "second" {
			t.Errorf("Expected second, got %s", data)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := s.Get(ctx, filepath.Join(directory, "missing.png"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, "file", FileConfig{Directory: t.TempDir()}, S3Config{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := New(ctx, "s3", FileConfig{}, S3Config{}); err == nil {
		t.Error("Expected an error for an S3 backend without a bucket")
	}
	if _, err := New(ctx, "gcs", FileConfig{}, S3Config{}); err == nil {
		t.Error("Expected an error for an unknown backend")
	}
}
