package capture

import (
	"context"

	"snapshot-render/internal/bitmap"
)

// View describes what to render: a page URL or an inline HTML document.
type View struct {
	Name string
	URL  string
	HTML string
}

// Size is a size in points.
type Size struct {
	Width  float64
	Height float64
}

type CaptureOptions struct {
	Headers       map[string]string
	MaskSelectors []string
}

// Capturer renders a view into a bitmap. A render that produces no content
// resolves to an empty bitmap, never to nil; errors are reserved for the
// renderer itself failing.
type Capturer interface {
	Capture(ctx context.Context, view View, proposedSize *Size, scale float64, options CaptureOptions) (*bitmap.Bitmap, error)
}
