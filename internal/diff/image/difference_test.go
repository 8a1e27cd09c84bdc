package image

import (
	"bytes"
	"fmt"
	"runtime"
	"testing"

	"snapshot-render/internal/bitmap"
)

func createTestBitmap(width int, height int, r uint8, g uint8, b uint8, a uint8) *bitmap.Bitmap {
	bm := bitmap.New(width, height, 1)
	for i := 0; i < len(bm.Pix); i += bitmap.BytesPerPixel {
		bm.Pix[i] = r
		bm.Pix[i+1] = g
		bm.Pix[i+2] = b
		bm.Pix[i+3] = a
	}
	return bm
}

func TestDifferenceDiff_Calculate(t *testing.T) {
	dd := NewDifferenceDiff()

	t.Run("NoDifference", func(t *testing.T) {
		img := createTestBitmap(10, 10, 255, 0, 0, 255)

		result := dd.Calculate(img, img.Clone())

		if result.DiffAmount != 0.0 {
			t.Errorf("Expected DiffAmount to be 0.0, got %f", result.DiffAmount)
		}
		if result.Image.Width != 10 || result.Image.Height != 10 {
			t.Fatalf("Expected 10x10 diff, got %dx%d", result.Image.Width, result.Image.Height)
		}
		want := createTestBitmap(10, 10, 0, 0, 0, 255)
		if !bytes.Equal(want.Pix, result.Image.Pix) {
			t.Errorf("Expected an all-black diff image")
		}
	})

	t.Run("AbsoluteDifferencePerChannel", func(t *testing.T) {
		reference := createTestBitmap(1, 1, 200, 10, 50, 255)
		candidate := createTestBitmap(1, 1, 50, 30, 50, 255)

		result := dd.Calculate(reference, candidate)

		if got := result.Image.At(0, 0); got.R != 150 || got.G != 20 || got.B != 0 || got.A != 255 {
			t.Errorf("Expected (150, 20, 0, 255), got %v", got)
		}
		if result.DiffAmount != 1.0 {
			t.Errorf("Expected DiffAmount to be 1.0, got %f", result.DiffAmount)
		}
	})

	t.Run("UnionOfSizes", func(t *testing.T) {
		reference := createTestBitmap(4, 2, 0, 0, 255, 255)
		candidate := createTestBitmap(2, 4, 255, 0, 0, 255)
		candidate.Scale = 3

		result := dd.Calculate(reference, candidate)

		if result.Image.Width != 4 || result.Image.Height != 4 {
			t.Fatalf("Expected 4x4 diff, got %dx%d", result.Image.Width, result.Image.Height)
		}
		if result.Image.Scale != 3 {
			t.Errorf("Expected the larger scale 3, got %f", result.Image.Scale)
		}
		// Overlap: |red - blue|
		if got := result.Image.At(0, 0); got.R != 255 || got.B != 255 {
			t.Errorf("Expected magenta in overlap, got %v", got)
		}
		// Reference only: difference against the black canvas
		if got := result.Image.At(3, 0); got.R != 0 || got.B != 255 {
			t.Errorf("Expected blue where only the reference covers, got %v", got)
		}
		// Candidate only: candidate color kept
		if got := result.Image.At(0, 3); got.R != 255 || got.B != 0 {
			t.Errorf("Expected red where only the candidate covers, got %v", got)
		}
		// Neither: background
		if got := result.Image.At(3, 3); got.R != 0 || got.G != 0 || got.B != 0 || got.A != 255 {
			t.Errorf("Expected opaque black background, got %v", got)
		}
	})

	t.Run("DoesNotMutateInputs", func(t *testing.T) {
		reference := createTestBitmap(3, 3, 1, 2, 3, 255)
		candidate := createTestBitmap(3, 3, 4, 5, 6, 255)
		referenceCopy := reference.Clone()
		candidateCopy := candidate.Clone()

		dd.Calculate(reference, candidate)

		if !bytes.Equal(reference.Pix, referenceCopy.Pix) || !bytes.Equal(candidate.Pix, candidateCopy.Pix) {
			t.Errorf("Expected inputs to be left untouched")
		}
	})

	t.Run("EmptyCandidate", func(t *testing.T) {
		reference := createTestBitmap(2, 2, 9, 9, 9, 255)

		result := dd.Calculate(reference, bitmap.Empty(1))

		if result.Image.Width != 2 || result.Image.Height != 2 {
			t.Fatalf("Expected 2x2 diff, got %dx%d", result.Image.Width, result.Image.Height)
		}
		if got := result.Image.At(1, 1); got.R != 9 {
			t.Errorf("Expected reference color against black canvas, got %v", got)
		}
	})
}

func TestDifferenceBlend(t *testing.T) {
	tests := []struct {
		name string
		d    uint8
		s    uint8
		want uint8
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			128, 128, 0,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			77, 0, 77,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			10, 200, 190,
		},
	}

	for _, tt := range tests {
		name := tt.name
		d := tt.d
		s := tt.s
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := differenceBlend(d, s); got != want {
				t.Errorf("differenceBlend(%d, %d) = %d, want %d", d, s, got, want)
			}
		})
	}
}

func TestDifferenceDiff_TranslucentIdenticalIsBlack(t *testing.T) {
	dd := NewDifferenceDiff()
	img := createTestBitmap(2, 2, 64, 0, 0, 128)

	result := dd.Calculate(img, img.Clone())

	if result.DiffAmount != 0 {
		t.Errorf("Expected DiffAmount to be 0, got %f", result.DiffAmount)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := result.Image.At(x, y); got.R != 0 || got.G != 0 || got.B != 0 || got.A != 255 {
				t.Errorf("Expected opaque black at (%d, %d), got %v", x, y, got)
			}
		}
	}
}

func BenchmarkDifferenceDiff_Calculate(b *testing.B) {
	dd := NewDifferenceDiff()
	img1 := createTestBitmap(1920, 1080, 255, 255, 255, 255)
	img2 := createTestBitmap(1920, 1080, 250, 255, 255, 255)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dd.Calculate(img1, img2)
	}
}
