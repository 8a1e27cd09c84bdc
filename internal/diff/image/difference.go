package image

import (
	"sync/atomic"

	"snapshot-render/internal/bitmap"
)

// DifferenceDiff composites the candidate onto an opaque black canvas and
// then draws the reference over it with the "difference" blend mode, so
// identical pixels come out black and changed pixels light up.
type DifferenceDiff struct{}

func NewDifferenceDiff() *DifferenceDiff {
	return &DifferenceDiff{}
}

func (d *DifferenceDiff) Calculate(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *DiffResult {
	reference = orEmpty(reference)
	candidate = orEmpty(candidate)

	width := max(reference.Width, candidate.Width)
	height := max(reference.Height, candidate.Height)
	diff := bitmap.New(width, height, max(reference.Scale, candidate.Scale))

	var changedPixelCount int64
	totalPixelCount := int64(width * height)

	forEachRowRange(height, func(startY int, endY int) {
		d.process(reference, candidate, diff, startY, endY, &changedPixelCount)
	})

	diffAmount := 0.0
	if totalPixelCount > 0 {
		diffAmount = float64(changedPixelCount) / float64(totalPixelCount)
	}

	return &DiffResult{
		Image:      diff,
		DiffAmount: diffAmount,
	}
}

func (d *DifferenceDiff) process(reference *bitmap.Bitmap, candidate *bitmap.Bitmap, diff *bitmap.Bitmap, startY int, endY int, changedCount *int64) {
	var localChanged int64

	for y := startY; y < endY; y++ {
		diffRowStart := y * diff.BytesPerRow()

		for x := 0; x < diff.Width; x++ {
			diffOffset := diffRowStart + x*bitmap.BytesPerPixel

			// Canvas is opaque black; candidate goes on top with source-over.
			var r, g, b uint8
			if x < candidate.Width && y < candidate.Height {
				offset := y*candidate.BytesPerRow() + x*bitmap.BytesPerPixel
				r = candidate.Pix[offset]
				g = candidate.Pix[offset+1]
				b = candidate.Pix[offset+2]
			}

			if x < reference.Width && y < reference.Height {
				offset := y*reference.BytesPerRow() + x*bitmap.BytesPerPixel
				r = differenceBlend(r, reference.Pix[offset])
				g = differenceBlend(g, reference.Pix[offset+1])
				b = differenceBlend(b, reference.Pix[offset+2])
			}

			diff.Pix[diffOffset] = r
			diff.Pix[diffOffset+1] = g
			diff.Pix[diffOffset+2] = b
			diff.Pix[diffOffset+3] = 255

			if r != 0 || g != 0 || b != 0 {
				localChanged++
			}
		}
	}

	atomic.AddInt64(changedCount, localChanged)
}

// differenceBlend applies the separable "difference" mode to one
// premultiplied channel. The candidate already sits on the canvas with its
// own coverage, so both sides carry the same weighting and the result is
// |d - s| regardless of the reference alpha.
func differenceBlend(d uint8, s uint8) uint8 {
	if d > s {
		return d - s
	}
	return s - d
}
