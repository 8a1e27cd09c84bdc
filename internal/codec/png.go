package codec

import (
	"bytes"
	"fmt"
	"image/png"

	"snapshot-render/internal/bitmap"
)

type pngCodec struct {
	encoder png.Encoder
}

// PNG stores straight alpha, so it is lossless for opaque bitmaps and for
// any bitmap whose premultiplied values survive un-premultiplication.
var PNG Codec = &pngCodec{
	encoder: png.Encoder{CompressionLevel: png.BestCompression},
}

func (c *pngCodec) Encode(b *bitmap.Bitmap) ([]byte, error) {
	if err := checkEncodable(b); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := c.encoder.Encode(&buffer, b.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buffer.Bytes(), nil
}

func (c *pngCodec) Decode(data []byte, scale float64) (*bitmap.Bitmap, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return bitmap.FromImage(img, scale), nil
}

func (c *pngCodec) Extension() string {
	return "png"
}
