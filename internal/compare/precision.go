package compare

import (
	"fmt"
	"strconv"
)

// Precision controls how close a candidate must be to its reference.
//
// Precision is the fraction of color bytes that must match exactly.
// PerceptualPrecision, when below 1, relaxes per-pixel matching to a CIE76
// color distance of at most (1-PerceptualPrecision)*100; Precision is then
// the fraction of pixels that must match.
type Precision struct {
	Precision           float64 `json:"precision"`
	PerceptualPrecision float64 `json:"perceptualPrecision"`
}

func DefaultPrecision() Precision {
	return Precision{
		Precision:           1,
		PerceptualPrecision: 1,
	}
}

func (p Precision) Validate() error {
	if !(p.Precision >= 0 && p.Precision <= 1) {
		return fmt.Errorf("precision must be in [0, 1], got %v", p.Precision)
	}
	if !(p.PerceptualPrecision >= 0 && p.PerceptualPrecision <= 1) {
		return fmt.Errorf("perceptual precision must be in [0, 1], got %v", p.PerceptualPrecision)
	}
	return nil
}

func (p Precision) exact() bool {
	return p.Precision >= 1 && p.PerceptualPrecision >= 1
}

func (p Precision) perceptual() bool {
	return p.PerceptualPrecision < 1
}

// formatRatio prints a ratio with single precision, so 0.99 reads "0.99"
// rather than its float64 expansion.
func formatRatio(v float64) string {
	return strconv.FormatFloat(float64(float32(v)), 'g', -1, 32)
}
