package stroke

import (
	"errors"
	"fmt"
	"math"
)

// Maximum per-coordinate difference for two samples to count as the same
// point. Coordinates survive a JSON round trip, so exact comparison is too strict.
const Epsilon = 1e-3

var (
	ErrEmpty    = errors.New("stroke has no samples")
	ErrMismatch = errors.New("stroke coordinate arrays differ in length")
)

// One continuous pointer gesture, sampled as parallel x/y arrays
type Stroke struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`

	// Assigned by the sender when the stroke is first broadcast. Opaque.
	ID string `json:"id,omitempty"`
}

// Builds a stroke from (x, y) pairs
func FromPoints(points ...[2]float64) Stroke {
	s := Stroke{
		X: make([]float64, len(points)),
		Y: make([]float64, len(points)),
	}
	for i, p := range points {
		s.X[i] = p[0]
		s.Y[i] = p[1]
	}
	return s
}

func (s Stroke) Len() int {
	return len(s.X)
}

func (s Stroke) Validate() error {
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: %d x, %d y", ErrMismatch, len(s.X), len(s.Y))
	}
	if len(s.X) == 0 {
		return ErrEmpty
	}
	return nil
}

// Returns a deep copy so callers can't alias the sample arrays
func (s Stroke) Clone() Stroke {
	c := Stroke{
		X:  make([]float64, len(s.X)),
		Y:  make([]float64, len(s.Y)),
		ID: s.ID,
	}
	copy(c.X, s.X)
	copy(c.Y, s.Y)
	return c
}

// NearlyEqual reports whether a and b have the same number of samples and
// every coordinate differs by less than Epsilon. IDs are ignored.
func NearlyEqual(a, b Stroke) bool {
	if len(a.X) != len(b.X) || len(a.Y) != len(b.Y) {
		return false
	}
	for i := range a.X {
		if math.Abs(a.X[i]-b.X[i]) >= Epsilon {
			return false
		}
	}
	for i := range a.Y {
		if math.Abs(a.Y[i]-b.Y[i]) >= Epsilon {
			return false
		}
	}
	return true
}

// Same is NearlyEqual plus id compatibility: two strokes that both carry an
// id must carry the same one.
func Same(a, b Stroke) bool {
	if a.ID != "" && b.ID != "" && a.ID != b.ID {
		return false
	}
	return NearlyEqual(a, b)
}

// MatchBatch reports whether received is the echo of sent: same length and
// pairwise NearlyEqual. An empty batch never matches since it carries no
// evidence of who sent it.
func MatchBatch(received, sent []Stroke) bool {
	if len(received) == 0 || len(received) != len(sent) {
		return false
	}
	for i := range received {
		if !NearlyEqual(received[i], sent[i]) {
			return false
		}
	}
	return true
}
