package compare

import "snapshot-render/internal/bitmap"

type Kind string

const (
	KindMatch             Kind = "match"
	KindDecodeFailure     Kind = "decode-failure"
	KindEmptyCandidate    Kind = "empty-candidate"
	KindDimensionMismatch Kind = "dimension-mismatch"
	KindContentMismatch   Kind = "content-mismatch"
)

// Result is the outcome of one comparison. Every failure mode is reported
// here; Compare never returns an error.
type Result struct {
	Kind    Kind
	Message string
	// Diff is the difference image, nil on a match.
	Diff *bitmap.Bitmap
	// DiffAmount is the fraction of diff pixels that are not black.
	DiffAmount float64
}

func (r *Result) Match() bool {
	return r.Kind == KindMatch
}
