package image

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"snapshot-render/internal/bitmap"
)

type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFinder groups changed pixels into bounding boxes. Pixels covered by
// only one of the two bitmaps count as changed.
type RegionFinder struct {
	// Boxes closer than MergeDistance pixels are merged into one.
	MergeDistance int
}

func NewRegionFinder() *RegionFinder {
	return &RegionFinder{
		MergeDistance: 10,
	}
}

func (r *RegionFinder) Find(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) []Rectangle {
	reference = orEmpty(reference)
	candidate = orEmpty(candidate)

	width := max(reference.Width, candidate.Width)
	height := max(reference.Height, candidate.Height)

	diffMap := make([][]bool, height)
	for i := range diffMap {
		diffMap[i] = make([]bool, width)
	}

	forEachRowRange(height, func(startY int, endY int) {
		for y := startY; y < endY; y++ {
			for x := 0; x < width; x++ {
				referenceCovers := x < reference.Width && y < reference.Height
				candidateCovers := x < candidate.Width && y < candidate.Height
				if referenceCovers != candidateCovers || reference.At(x, y) != candidate.At(x, y) {
					diffMap[y][x] = true
				}
			}
		}
	})

	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var rectangles []Rectangle
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if diffMap[y][x] && !visited[y][x] {
				rectangles = append(rectangles, r.findBoundingBox(diffMap, visited, x, y, width, height))
			}
		}
	}

	return r.mergeRectangles(rectangles)
}

func (r *RegionFinder) findBoundingBox(diffMap [][]bool, visited [][]bool, startX int, startY int, width int, height int) Rectangle {
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	queue := []image.Point{{X: startX, Y: startY}}
	visited[startY][startX] = true

	for len(queue) > 0 {
		point := queue[0]
		queue = queue[1:]

		minX = min(minX, point.X)
		maxX = max(maxX, point.X)
		minY = min(minY, point.Y)
		maxY = max(maxY, point.Y)

		// Check 8 neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}

				nx := point.X + dx
				ny := point.Y + dy

				if nx >= 0 && nx < width && ny >= 0 && ny < height &&
					diffMap[ny][nx] && !visited[ny][nx] {
					visited[ny][nx] = true
					queue = append(queue, image.Point{X: nx, Y: ny})
				}
			}
		}
	}

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
}

func (r *RegionFinder) mergeRectangles(rects []Rectangle) []Rectangle {
	if len(rects) <= 1 {
		return rects
	}

	merged := make([]Rectangle, 0, len(rects))
	used := make([]bool, len(rects))

	for i := 0; i < len(rects); i++ {
		if used[i] {
			continue
		}

		current := rects[i]
		mergedAny := true

		for mergedAny {
			mergedAny = false
			for j := i + 1; j < len(rects); j++ {
				if used[j] {
					continue
				}

				if current.expand(r.MergeDistance).overlaps(rects[j].expand(r.MergeDistance)) {
					current = current.union(rects[j])
					used[j] = true
					mergedAny = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

func (r Rectangle) overlaps(o Rectangle) bool {
	return !(r.X+r.Width <= o.X || o.X+o.Width <= r.X ||
		r.Y+r.Height <= o.Y || o.Y+o.Height <= r.Y)
}

func (r Rectangle) expand(n int) Rectangle {
	return Rectangle{
		X:      r.X - n,
		Y:      r.Y - n,
		Width:  r.Width + 2*n,
		Height: r.Height + 2*n,
	}
}

func (r Rectangle) union(o Rectangle) Rectangle {
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.Width, o.X+o.Width)
	maxY := max(r.Y+r.Height, o.Y+o.Height)

	return Rectangle{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

// RectangleDiff outlines changed regions in red on top of the candidate.
type RectangleDiff struct {
	finder *RegionFinder
}

func NewRectangleDiff() *RectangleDiff {
	return &RectangleDiff{
		finder: NewRegionFinder(),
	}
}

func (r *RectangleDiff) Calculate(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *DiffResult {
	reference = orEmpty(reference)
	candidate = orEmpty(candidate)

	rectangles := r.finder.Find(reference, candidate)

	width := max(reference.Width, candidate.Width)
	height := max(reference.Height, candidate.Height)
	result := bitmap.New(width, height, max(reference.Scale, candidate.Scale))
	canvas := result.Image()
	bounds := canvas.Bounds()

	draw.Draw(canvas, bounds, image.Black, image.Point{}, draw.Src)
	draw.Draw(canvas, candidate.Bounds(), candidate.Image(), image.Point{}, draw.Over)

	rectColor := &image.Uniform{C: color.RGBA{R: 255, A: 255}}

	for _, rect := range rectangles {
		for thickness := 0; thickness < 3; thickness++ {
			outer := image.Rect(
				rect.X-thickness, rect.Y-thickness,
				rect.X+rect.Width+thickness, rect.Y+rect.Height+thickness,
			)
			edges := []image.Rectangle{
				image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+1),
				image.Rect(outer.Min.X, outer.Max.Y-1, outer.Max.X, outer.Max.Y),
				image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+1, outer.Max.Y),
				image.Rect(outer.Max.X-1, outer.Min.Y, outer.Max.X, outer.Max.Y),
			}
			for _, edge := range edges {
				draw.Draw(canvas, edge.Intersect(bounds), rectColor, image.Point{}, draw.Src)
			}
		}
	}

	totalArea := width * height
	diffArea := 0
	for _, rect := range rectangles {
		diffArea += rect.Width * rect.Height
	}

	diffAmount := 0.0
	if totalArea > 0 {
		diffAmount = min(float64(diffArea)/float64(totalArea), 1.0)
	}

	return &DiffResult{
		Image:      result,
		DiffAmount: diffAmount,
	}
}
