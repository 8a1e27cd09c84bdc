package compare

import (
	"bytes"
	"fmt"
	"math"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
	diffimage "snapshot-render/internal/diff/image"
)

const (
	MessageReferenceNotLoaded     = "Reference image could not be loaded."
	MessageCandidateNotLoaded     = "Newly-taken snapshot could not be loaded."
	MessageCandidateEmpty         = "Newly-taken snapshot is empty."
	MessageReferenceDataNotLoaded = "Reference image's data could not be loaded."
	MessageCandidateDataNotLoaded = "Newly-taken snapshot's data could not be loaded."
	MessageContentMismatch        = "Newly-taken snapshot does not match reference."
)

// thresholdEpsilon absorbs binary representation error in (1-precision)*n,
// e.g. (1-0.9)*10 evaluating to 0.9999999999999998.
const thresholdEpsilon = 1e-7

type Comparator struct {
	codec  codec.Codec
	differ diffimage.Differ
}

func NewComparator(c codec.Codec) *Comparator {
	if c == nil {
		c = codec.PNG
	}
	return &Comparator{
		codec:  c,
		differ: diffimage.NewDifferenceDiff(),
	}
}

// Compare decides whether candidate matches reference within p. The checks
// run in a fixed order and the first failing one determines the message.
func (c *Comparator) Compare(reference *bitmap.Bitmap, candidate *bitmap.Bitmap, p Precision) *Result {
	if reference == nil {
		return c.mismatch(KindDecodeFailure, MessageReferenceNotLoaded, reference, candidate)
	}
	if candidate == nil {
		return c.mismatch(KindDecodeFailure, MessageCandidateNotLoaded, reference, candidate)
	}
	if candidate.IsEmpty() {
		return c.mismatch(KindEmptyCandidate, MessageCandidateEmpty, reference, candidate)
	}
	if reference.Width != candidate.Width || reference.Height != candidate.Height {
		message := fmt.Sprintf("Newly-taken snapshot@%s does not match reference@%s.", candidate.Size(), reference.Size())
		return c.mismatch(KindDimensionMismatch, message, reference, candidate)
	}
	if !reference.Valid() {
		return c.mismatch(KindDecodeFailure, MessageReferenceDataNotLoaded, reference, candidate)
	}

	byteCount := reference.ByteCount()
	if candidate.Valid() && bytes.Equal(reference.Pix[:byteCount], candidate.Pix[:byteCount]) {
		return &Result{Kind: KindMatch}
	}

	// Some backends leave nondeterministic bytes in an otherwise identical
	// buffer; a lossless round trip normalizes them.
	normalized, err := codec.RoundTrip(c.normalizer(candidate), candidate)
	if err != nil || normalized.Width != reference.Width || normalized.Height != reference.Height {
		return c.mismatch(KindDecodeFailure, MessageCandidateDataNotLoaded, reference, candidate)
	}
	if bytes.Equal(reference.Pix, normalized.Pix) {
		return &Result{Kind: KindMatch}
	}

	if p.exact() {
		return c.mismatch(KindContentMismatch, MessageContentMismatch, reference, candidate)
	}

	var differentCount, totalCount int
	if p.perceptual() {
		differentCount = countPerceptuallyDifferentPixels(reference.Pix, normalized.Pix, perceptualTolerance(p.PerceptualPrecision))
		totalCount = reference.Width * reference.Height
	} else {
		differentCount = countDifferentBytes(reference.Pix, normalized.Pix)
		totalCount = byteCount
	}

	threshold := int(math.Floor((1-p.Precision)*float64(totalCount) + thresholdEpsilon))
	if differentCount > threshold {
		actual := 1 - float64(differentCount)/float64(totalCount)
		message := fmt.Sprintf("Actual image precision %s is less than required %s.", formatRatio(actual), formatRatio(p.Precision))
		return c.mismatch(KindContentMismatch, message, reference, candidate)
	}

	return &Result{Kind: KindMatch}
}

// normalizer picks the configured codec unless it would lose translucent
// premultiplied samples, in which case TIFF is used.
func (c *Comparator) normalizer(candidate *bitmap.Bitmap) codec.Codec {
	if candidate.Valid() && !codec.Preserves(c.codec, candidate) {
		return codec.TIFF
	}
	return c.codec
}

// Diff renders the difference image between reference and candidate.
func (c *Comparator) Diff(reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *bitmap.Bitmap {
	return c.differ.Calculate(reference, candidate).Image
}

func (c *Comparator) mismatch(kind Kind, message string, reference *bitmap.Bitmap, candidate *bitmap.Bitmap) *Result {
	diff := c.differ.Calculate(reference, candidate)
	return &Result{
		Kind:       kind,
		Message:    message,
		Diff:       diff.Image,
		DiffAmount: diff.DiffAmount,
	}
}
