package codec

import (
	"bytes"
	"fmt"

	"golang.org/x/image/tiff"

	"snapshot-render/internal/bitmap"
)

type tiffCodec struct {
	options tiff.Options
}

// TIFF writes *image.RGBA with associated alpha, so premultiplied buffers
// round-trip verbatim, including translucent pixels.
var TIFF Codec = &tiffCodec{
	options: tiff.Options{Compression: tiff.Deflate},
}

func (c *tiffCodec) Encode(b *bitmap.Bitmap) ([]byte, error) {
	if err := checkEncodable(b); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := tiff.Encode(&buffer, b.Image(), &c.options); err != nil {
		return nil, fmt.Errorf("failed to encode tiff: %w", err)
	}
	return buffer.Bytes(), nil
}

func (c *tiffCodec) Decode(data []byte, scale float64) (*bitmap.Bitmap, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tiff: %w", err)
	}
	return bitmap.FromImage(img, scale), nil
}

func (c *tiffCodec) Extension() string {
	return "tiff"
}
