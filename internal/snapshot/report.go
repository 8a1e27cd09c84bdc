package snapshot

import (
	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/compare"
	diffimage "snapshot-render/internal/diff/image"
)

const (
	AttachmentReference  = "reference"
	AttachmentFailure    = "failure"
	AttachmentDifference = "difference"
)

const (
	emptyImageText    = "The image is empty"
	unloadedImageText = "The image could not be loaded"
)

// Attachment is one artifact of a failed comparison. Exactly one of Image
// and Text is set.
type Attachment struct {
	Name  string
	Image *bitmap.Bitmap
	Text  string
}

func (a Attachment) Extension(c codec.Codec) string {
	if a.Image == nil {
		return "txt"
	}
	return c.Extension()
}

func (a Attachment) Bytes(c codec.Codec) ([]byte, error) {
	if a.Image == nil {
		return []byte(a.Text), nil
	}
	return c.Encode(a.Image)
}

type Report struct {
	Message     string
	Kind        compare.Kind
	Attachments []Attachment
	Regions     []diffimage.Rectangle
}

func (r *Report) Attachment(name string) (Attachment, bool) {
	for _, a := range r.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}
