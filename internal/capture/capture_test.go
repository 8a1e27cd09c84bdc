package capture_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/capture"
)

type capturerMock struct {
	fakeCapture func(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error)
}

func (m *capturerMock) Capture(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
	return m.fakeCapture(ctx, view, proposedSize, scale, options)
}

func TestExecutorDoRunsJobsOneAtATime(t *testing.T) {
	e := capture.NewExecutor()
	defer e.Close()

	var running int32
	var maxRunning int32
	var count int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Do(context.Background(), func() {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				atomic.AddInt32(&running, -1)
				atomic.AddInt32(&count, 1)
			})
			if err != nil {
				t.Errorf("Do() returned unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&count); got != 32 {
		t.Errorf("ran %d jobs, want 32", got)
	}
	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Errorf("max concurrent jobs = %d, want 1", got)
	}
}

func TestExecutorDoAfterClose(t *testing.T) {
	e := capture.NewExecutor()
	e.Close()
	e.Close()

	err := e.Do(context.Background(), func() {
		t.Error("job must not run on a closed executor")
	})
	if !errors.Is(err, capture.ErrExecutorClosed) {
		t.Errorf("Do() error = %v, want %v", err, capture.ErrExecutorClosed)
	}
}

func TestExecutorDoCancelled(t *testing.T) {
	e := capture.NewExecutor()
	defer e.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = e.Do(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Do(ctx, func() {})
	close(release)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want %v", err, context.Canceled)
	}
}

func TestAsync(t *testing.T) {
	red := bitmap.New(2, 2, 2)
	for i := 0; i < len(red.Pix); i += bitmap.BytesPerPixel {
		red.Pix[i] = 0xff
		red.Pix[i+3] = 0xff
	}

	type in struct {
		view         capture.View
		proposedSize *capture.Size
		scale        float64
	}

	tests := []struct {
		name            string
		capturer        capture.Capturer
		in              in
		want            *bitmap.Bitmap
		wantErrorString string
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&capturerMock{
				fakeCapture: func(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
					return red, nil
				},
			},
			in{
				view:         capture.View{Name: "red"},
				proposedSize: &capture.Size{Width: 1, Height: 1},
				scale:        2,
			},
			red,
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&capturerMock{
				fakeCapture: func(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
					return nil, nil
				},
			},
			in{
				view:  capture.View{Name: "nothing"},
				scale: 3,
			},
			bitmap.Empty(3),
			"",
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&capturerMock{
				fakeCapture: func(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
					return nil, errors.New("fake")
				},
			},
			in{
				view:  capture.View{Name: "broken"},
				scale: 1,
			},
			nil,
			"fake",
		},
	}
	for _, tt := range tests {
		name := tt.name
		capturer := tt.capturer
		in := tt.in
		want := tt.want
		wantErrorString := tt.wantErrorString
		t.Run(name, func(t *testing.T) {
			e := capture.NewExecutor()
			defer e.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			got, err := capture.Async(e, capturer, capture.CaptureOptions{})(ctx, in.view, in.proposedSize, in.scale).Await(ctx)
			if wantErrorString != "" {
				if err == nil || err.Error() != wantErrorString {
					t.Errorf("Await() error = %v, want %s", err, wantErrorString)
				}
				return
			}
			if err != nil {
				t.Fatalf("Await() returned unexpected error: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFutureDone(t *testing.T) {
	e := capture.NewExecutor()
	defer e.Close()

	release := make(chan struct{})
	c := &capturerMock{
		fakeCapture: func(ctx context.Context, view capture.View, proposedSize *capture.Size, scale float64, options capture.CaptureOptions) (*bitmap.Bitmap, error) {
			<-release
			return bitmap.New(1, 1, scale), nil
		},
	}

	f := capture.Async(e, c, capture.CaptureOptions{})(context.Background(), capture.View{}, nil, 1)
	select {
	case <-f.Done():
		t.Fatal("future resolved before the capture finished")
	default:
	}

	close(release)
	<-f.Done()
	got, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("Await() returned unexpected error: %v", err)
	}
	if got.Width != 1 || got.Height != 1 {
		t.Errorf("got %dx%d bitmap, want 1x1", got.Width, got.Height)
	}
}
