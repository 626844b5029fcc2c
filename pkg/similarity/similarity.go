// Package similarity scores how closely two equally sized raster images match.
//
// The score is a ratio of overlap computed over every (pixel, channel) sample:
// the sum of per-sample minimums divided by the sum of per-sample maximums.
// Identical images score exactly 1.0; images that diverge in any channel pull
// the ratio down in proportion to the larger of the two values.
package similarity

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// DefaultThreshold is the minimum score treated as a match when the caller
// does not supply one.
const DefaultThreshold = 0.85

// channels is the number of samples taken per pixel (red, green, blue).
const channels = 3

var (
	// ErrDimensionMismatch reports that the candidate and control differ in
	// width or height.
	ErrDimensionMismatch = errors.New("similarity: images have different dimensions")

	// ErrDegenerateInput reports an all-zero pair of images when the scorer is
	// configured with DegenerateError.
	ErrDegenerateInput = errors.New("similarity: both images are entirely black")
)

// DimensionMismatchError carries the sizes of two images that cannot be
// compared.
type DimensionMismatchError struct {
	Candidate image.Point
	Control   image.Point
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("similarity: candidate is %dx%d but control is %dx%d",
		e.Candidate.X, e.Candidate.Y, e.Control.X, e.Control.Y)
}

// Is makes errors.Is(err, ErrDimensionMismatch) succeed.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// DegeneratePolicy decides the outcome when every sample of both images is
// zero and the overlap ratio is undefined.
type DegeneratePolicy int

const (
	// DegenerateIdentical scores two all-black images as 1.0.
	DegenerateIdentical DegeneratePolicy = iota
	// DegenerateError fails the comparison with ErrDegenerateInput.
	DegenerateError
)

// String returns the policy name.
func (p DegeneratePolicy) String() string {
	switch p {
	case DegenerateIdentical:
		return "identical"
	case DegenerateError:
		return "error"
	default:
		return fmt.Sprintf("DegeneratePolicy(%d)", int(p))
	}
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithDegeneratePolicy overrides how all-black image pairs are scored.
func WithDegeneratePolicy(p DegeneratePolicy) Option {
	return func(s *Scorer) { s.degenerate = p }
}

// Scorer computes similarity scores. The zero value is ready to use and
// applies DegenerateIdentical. A Scorer holds no mutable state and may be
// shared between goroutines.
type Scorer struct {
	degenerate DegeneratePolicy
}

// NewScorer builds a Scorer with the given options applied.
func NewScorer(opts ...Option) Scorer {
	var s Scorer
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Policy returns the degenerate-input policy in effect.
func (s Scorer) Policy() DegeneratePolicy { return s.degenerate }

// Similarity returns the overlap ratio of candidate against control.
//
// Both images must have the same width and height; their bounds may start at
// different origins. Samples are visited in row-major order, and within each
// pixel in red, green, blue order.
func (s Scorer) Similarity(candidate, control image.Image) (float64, error) {
	cb, kb := candidate.Bounds(), control.Bounds()
	if cb.Size() != kb.Size() {
		return 0, &DimensionMismatchError{Candidate: cb.Size(), Control: kb.Size()}
	}

	var num, den float64
	w, h := cb.Dx(), cb.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := rgb(candidate.At(cb.Min.X+x, cb.Min.Y+y))
			b := rgb(control.At(kb.Min.X+x, kb.Min.Y+y))
			for c := 0; c < channels; c++ {
				lo, hi := a[c], b[c]
				if lo > hi {
					lo, hi = hi, lo
				}
				num += lo
				den += hi
			}
		}
	}

	if den == 0 {
		if s.degenerate == DegenerateError {
			return 0, ErrDegenerateInput
		}
		return 1, nil
	}
	return num / den, nil
}

// IsSimilar reports whether Similarity(candidate, control) >= threshold.
func (s Scorer) IsSimilar(candidate, control image.Image, threshold float64) (bool, error) {
	score, err := s.Similarity(candidate, control)
	if err != nil {
		return false, err
	}
	return score >= threshold, nil
}

// Similarity scores candidate against control with the default Scorer.
func Similarity(candidate, control image.Image) (float64, error) {
	return Scorer{}.Similarity(candidate, control)
}

// IsSimilar compares candidate against control with the default Scorer.
func IsSimilar(candidate, control image.Image, threshold float64) (bool, error) {
	return Scorer{}.IsSimilar(candidate, control, threshold)
}

// Flatten unrolls img into its channel vector: width*height*3 samples in
// row-major pixel order, red then green then blue within each pixel.
func Flatten(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy()*channels)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := rgb(img.At(x, y))
			out = append(out, px[:]...)
		}
	}
	return out
}

// rgb returns the straight (non-premultiplied) 8-bit red, green and blue
// values of c. Alpha is discarded.
func rgb(c color.Color) [channels]float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [channels]float64{float64(n.R), float64(n.G), float64(n.B)}
}
