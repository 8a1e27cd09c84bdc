package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/capture"
	"snapshot-render/internal/compare"
	"snapshot-render/internal/retry"
	"snapshot-render/internal/snapshot"
	"snapshot-render/internal/storage"
)

type capturerMock struct {
	bitmap *bitmap.Bitmap
}

func (m *capturerMock) Capture(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
	return m.bitmap.Clone(), nil
}

func solid(r uint8, g uint8, b uint8) *bitmap.Bitmap {
	bm := bitmap.New(4, 3, 1)
	for i := 0; i < len(bm.Pix); i += bitmap.BytesPerPixel {
		bm.Pix[i] = r
		bm.Pix[i+1] = g
		bm.Pix[i+2] = b
		bm.Pix[i+3] = 0xff
	}
	return bm
}

func TestProcessSnapshot(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	executor := capture.NewExecutor()
	defer executor.Close()

	newWorker := func(b *bitmap.Bitmap) *Worker {
		return &Worker{
			Render:         capture.Async(executor, &capturerMock{bitmap: b}, capture.CaptureOptions{}),
			References:     storage.NewReferenceStore(s, nil, 1),
			Strategy:       snapshot.NewStrategy(compare.DefaultPrecision(), 1),
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			UploadStrategy: retry.NewNever(),
		}
	}
	key := storage.Key{Test: "TestProcessSnapshot", Name: "home", Platform: "test"}
	view := capture.View{Name: "home", URL: "https://example.com/"}

	recorded, err := newWorker(solid(0xff, 0, 0)).processSnapshot(ctx, key, view)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded.Recorded || recorded.Match {
		t.Errorf("Expected the first run to record, got %+v", recorded)
	}

	matched, err := newWorker(solid(0xff, 0, 0)).processSnapshot(ctx, key, view)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched.Match {
		t.Errorf("Expected a match, got %+v", matched)
	}

	mismatched, err := newWorker(solid(0, 0, 0xff)).processSnapshot(ctx, key, view)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mismatched.Match || mismatched.Message != compare.MessageContentMismatch {
		t.Errorf("Expected a content mismatch, got %+v", mismatched)
	}
	for _, name := range []string{snapshot.AttachmentReference, snapshot.AttachmentFailure, snapshot.AttachmentDifference} {
		url, ok := mismatched.Attachments[name]
		if !ok {
			t.Errorf("Expected a %s attachment", name)
			continue
		}
		if _, err := os.Stat(url); err != nil {
			t.Errorf("Expected %s to exist: %v", url, err)
		}
	}
}

func TestCallback(t *testing.T) {
	var got []byte
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Method != http.MethodPatch {
			t.Errorf("Expected PATCH, got %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		got = body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	want, err := json.Marshal(WorkerOutput{Match: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := callback(ctx, server.URL, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(string(want), string(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}
