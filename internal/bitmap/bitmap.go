package bitmap

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"golang.org/x/image/draw"
)

const BytesPerPixel = 4

// Bitmap is a decoded RGBA pixel buffer, 8 bits per channel with
// premultiplied alpha, laid out row-major with no row padding.
type Bitmap struct {
	Width  int
	Height int
	Scale  float64
	Pix    []byte
}

func New(width int, height int, scale float64) *Bitmap {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Bitmap{
		Width:  width,
		Height: height,
		Scale:  normalizeScale(scale),
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Empty returns a zero-sized bitmap, the placeholder a renderer resolves to
// when it produces no content.
func Empty(scale float64) *Bitmap {
	return &Bitmap{Scale: normalizeScale(scale)}
}

// FromImage draws img at the origin of a fresh premultiplied RGBA buffer.
// Any concrete image type (NRGBA, YCbCr, paletted, ...) ends up with the same
// byte layout, so two visually identical images compare byte-equal.
func FromImage(img image.Image, scale float64) *Bitmap {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	b := New(bounds.Dx(), bounds.Dy(), scale)
	if b.IsEmpty() {
		return b
	}
	draw.Draw(b.rgba(), image.Rect(0, 0, b.Width, b.Height), img, bounds.Min, draw.Src)
	return b
}

func normalizeScale(scale float64) float64 {
	if scale <= 0 {
		return 1
	}
	return scale
}

func (b *Bitmap) BytesPerRow() int {
	return b.Width * BytesPerPixel
}

func (b *Bitmap) ByteCount() int {
	return b.BytesPerRow() * b.Height
}

func (b *Bitmap) IsEmpty() bool {
	return b.Width == 0 || b.Height == 0
}

// Valid reports whether the backing buffer matches the declared dimensions.
func (b *Bitmap) Valid() bool {
	if b.Width < 0 || b.Height < 0 {
		return false
	}
	if b.IsEmpty() {
		return true
	}
	return len(b.Pix) == b.ByteCount()
}

func (b *Bitmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Image exposes the bitmap as an *image.RGBA sharing the same buffer.
// Callers must treat it as read-only.
func (b *Bitmap) Image() *image.RGBA {
	return b.rgba()
}

func (b *Bitmap) rgba() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: b.BytesPerRow(),
		Rect:   b.Bounds(),
	}
}

func (b *Bitmap) At(x int, y int) color.RGBA {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return color.RGBA{}
	}
	i := y*b.BytesPerRow() + x*BytesPerPixel
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
}

func (b *Bitmap) Clone() *Bitmap {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Bitmap{
		Width:  b.Width,
		Height: b.Height,
		Scale:  b.Scale,
		Pix:    pix,
	}
}

// Size is the logical size in points, i.e. pixels divided by scale.
type Size struct {
	Width  float64
	Height float64
}

func (s Size) String() string {
	return fmt.Sprintf("(%s, %s)", formatPoint(s.Width), formatPoint(s.Height))
}

func formatPoint(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func (b *Bitmap) Size() Size {
	scale := normalizeScale(b.Scale)
	return Size{
		Width:  float64(b.Width) / scale,
		Height: float64(b.Height) / scale,
	}
}
