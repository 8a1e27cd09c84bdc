package compare

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"

	"snapshot-render/internal/bitmap"
)

// Below this many pixels the goroutine fan-out costs more than it saves.
const parallelPixelThreshold = 64 * 1024

// forEachPixelRange splits [0, pixelCount) into one range per worker.
func forEachPixelRange(pixelCount int, fn func(start int, end int)) {
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	if pixelCount < parallelPixelThreshold || numWorkers < 2 {
		fn(0, pixelCount)
		return
	}

	pixelsPerWorker := pixelCount / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		start := i * pixelsPerWorker
		end := start + pixelsPerWorker
		if i == numWorkers-1 {
			end = pixelCount
		}

		go func(start int, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}

	wg.Wait()
}

func countDifferentBytes(reference []byte, candidate []byte) int {
	var differentCount int64

	forEachPixelRange(len(reference)/bitmap.BytesPerPixel, func(start int, end int) {
		var local int64
		for offset := start * bitmap.BytesPerPixel; offset < end*bitmap.BytesPerPixel; offset++ {
			if reference[offset] != candidate[offset] {
				local++
			}
		}
		atomic.AddInt64(&differentCount, local)
	})

	return int(differentCount)
}

// perceptualTolerance converts a perceptual precision into the largest CIE76
// delta E still considered a match.
func perceptualTolerance(perceptualPrecision float64) float64 {
	return (1 - perceptualPrecision) * 100
}

func countPerceptuallyDifferentPixels(reference []byte, candidate []byte, tolerance float64) int {
	var differentCount int64

	forEachPixelRange(len(reference)/bitmap.BytesPerPixel, func(start int, end int) {
		var local int64
		for i := start; i < end; i++ {
			offset := i * bitmap.BytesPerPixel
			r := reference[offset : offset+bitmap.BytesPerPixel : offset+bitmap.BytesPerPixel]
			c := candidate[offset : offset+bitmap.BytesPerPixel : offset+bitmap.BytesPerPixel]
			if r[0] == c[0] && r[1] == c[1] && r[2] == c[2] && r[3] == c[3] {
				continue
			}
			if deltaE(r, c) > tolerance {
				local++
			}
		}
		atomic.AddInt64(&differentCount, local)
	})

	return int(differentCount)
}

// deltaE is the CIE76 distance between two premultiplied pixels, i.e. the
// colors they show over black, with an alpha change weighted like a
// lightness change.
func deltaE(reference []byte, candidate []byte) float64 {
	c1 := toColorfulColor(reference)
	c2 := toColorfulColor(candidate)
	colorDistance := c1.DistanceCIE76(c2) * 100
	alphaDistance := float64(absDiff(reference[3], candidate[3])) / 255 * 100
	return max(colorDistance, alphaDistance)
}

func toColorfulColor(p []byte) colorful.Color {
	return colorful.Color{
		R: float64(p[0]) / 255.0,
		G: float64(p[1]) / 255.0,
		B: float64(p[2]) / 255.0,
	}
}

func absDiff(a uint8, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
