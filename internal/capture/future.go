package capture

import (
	"context"

	"snapshot-render/internal/bitmap"
)

// Future is a bitmap that resolves asynchronously.
type Future struct {
	done   chan struct{}
	bitmap *bitmap.Bitmap
	err    error
}

func newFuture() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

func (f *Future) resolve(b *bitmap.Bitmap, err error) {
	f.bitmap = b
	f.err = err
	close(f.done)
}

// Done is closed once the bitmap is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the bitmap resolves or ctx is done.
func (f *Future) Await(ctx context.Context) (*bitmap.Bitmap, error) {
	select {
	case <-f.done:
		return f.bitmap, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RenderFunc is the injected rendering capability: it starts a render and
// returns immediately.
type RenderFunc func(ctx context.Context, view View, proposedSize *Size, scale float64) *Future

// Async schedules captures from c on e. The comparator side only ever sees a
// resolved bitmap; a capturer returning nil without an error resolves to an
// empty bitmap.
func Async(e *Executor, c Capturer, options CaptureOptions) RenderFunc {
	return func(ctx context.Context, view View, proposedSize *Size, scale float64) *Future {
		f := newFuture()
		go func() {
			var b *bitmap.Bitmap
			var captureErr error
			if err := e.Do(ctx, func() {
				b, captureErr = c.Capture(ctx, view, proposedSize, scale, options)
			}); err != nil {
				f.resolve(nil, err)
				return
			}
			if captureErr != nil {
				f.resolve(nil, captureErr)
				return
			}
			if b == nil {
				b = bitmap.Empty(scale)
			}
			f.resolve(b, nil)
		}()
		return f
	}
}
