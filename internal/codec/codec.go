package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"snapshot-render/internal/bitmap"
)

// Codec is a lossless still-image encoding. Encoding identical pixel content
// must produce identical bytes, and Decode(Encode(b)) must reproduce b's
// buffer for the bitmaps the codec declares lossless.
type Codec interface {
	Encode(b *bitmap.Bitmap) ([]byte, error)
	Decode(data []byte, scale float64) (*bitmap.Bitmap, error)
	Extension() string
}

var ErrEmpty = errors.New("cannot encode an empty bitmap")

func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "png", "":
		return PNG, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", name)
	}
}

func ForPath(path string) (Codec, error) {
	return ByName(strings.TrimPrefix(filepath.Ext(path), "."))
}

// RoundTrip encodes b and decodes the result back into a fresh bitmap.
func RoundTrip(c Codec, b *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	data, err := c.Encode(b)
	if err != nil {
		return nil, err
	}
	return c.Decode(data, b.Scale)
}

// Preserves reports whether a round trip through c reproduces b's buffer.
// PNG and BMP store straight alpha, so only opaque and fully transparent
// pixels survive them; TIFF keeps premultiplied samples verbatim.
func Preserves(c Codec, b *bitmap.Bitmap) bool {
	if c == TIFF {
		return true
	}
	for i := 3; i < len(b.Pix); i += bitmap.BytesPerPixel {
		if a := b.Pix[i]; a != 0 && a != 255 {
			return false
		}
	}
	return true
}

func checkEncodable(b *bitmap.Bitmap) error {
	if b == nil || b.IsEmpty() {
		return ErrEmpty
	}
	if !b.Valid() {
		return fmt.Errorf("bitmap buffer has %d bytes, want %d", len(b.Pix), b.ByteCount())
	}
	return nil
}
