package image

import "snapshot-render/internal/bitmap"

type DiffResult struct {
	Image      *bitmap.Bitmap
	DiffAmount float64
}

type Differ interface {
	Calculate(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *DiffResult
}

func orEmpty(b *bitmap.Bitmap) *bitmap.Bitmap {
	if b == nil || !b.Valid() {
		return bitmap.Empty(1)
	}
	return b
}
