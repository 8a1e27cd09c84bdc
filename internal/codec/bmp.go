package codec

import (
	"bytes"
	"fmt"

	"golang.org/x/image/bmp"

	"snapshot-render/internal/bitmap"
)

type bmpCodec struct{}

// BMP is only lossless for opaque bitmaps.
var BMP Codec = &bmpCodec{}

func (c *bmpCodec) Encode(b *bitmap.Bitmap) ([]byte, error) {
	if err := checkEncodable(b); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := bmp.Encode(&buffer, b.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode bmp: %w", err)
	}
	return buffer.Bytes(), nil
}

func (c *bmpCodec) Decode(data []byte, scale float64) (*bitmap.Bitmap, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode bmp: %w", err)
	}
	return bitmap.FromImage(img, scale), nil
}

func (c *bmpCodec) Extension() string {
	return "bmp"
}
