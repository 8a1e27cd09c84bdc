package snapshot

import (
	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/compare"
	diffimage "snapshot-render/internal/diff/image"
)

// Strategy bundles everything needed to judge and report one snapshot.
type Strategy struct {
	Precision    compare.Precision
	Scale        float64
	Codec        codec.Codec
	Comparator   *compare.Comparator
	RegionFinder *diffimage.RegionFinder
}

func NewStrategy(p compare.Precision, scale float64) *Strategy {
	return &Strategy{
		Precision:    p,
		Scale:        scale,
		Codec:        codec.PNG,
		Comparator:   compare.NewComparator(codec.PNG),
		RegionFinder: diffimage.NewRegionFinder(),
	}
}

// Diff returns nil when candidate matches reference.
func (s *Strategy) Diff(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *Report {
	result := s.Comparator.Compare(reference, candidate, s.Precision)
	if result.Match() {
		return nil
	}

	report := &Report{
		Message: result.Message,
		Kind:    result.Kind,
	}

	report.Attachments = []Attachment{
		imageAttachment(AttachmentReference, reference),
		imageAttachment(AttachmentFailure, candidate),
		imageAttachment(AttachmentDifference, result.Diff),
	}

	if s.RegionFinder != nil && result.Kind == compare.KindContentMismatch {
		report.Regions = s.RegionFinder.Find(reference, candidate)
	}

	return report
}

// imageAttachment falls back to a text placeholder when b cannot be encoded,
// so every report carries the same three attachments.
func imageAttachment(name string, b *bitmap.Bitmap) Attachment {
	switch {
	case b == nil || !b.Valid():
		return Attachment{Name: name, Text: unloadedImageText}
	case b.IsEmpty():
		return Attachment{Name: name, Text: emptyImageText}
	default:
		return Attachment{Name: name, Image: b}
	}
}
