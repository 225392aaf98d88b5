package reconcile

import (
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// Surface is the drawing primitive the engine renders onto. Indices are dense
// and 0-based; erasing an index shifts every later stroke down by one.
type Surface interface {
	NumStrokes() int

	// idx is -1 to append; programmatic marks strokes not drawn by the user
	BeginStrokeAt(x, y float64, idx int, programmatic bool)
	UpdateStroke(x, y float64)
	EndStrokeAt(x, y float64, programmatic bool)

	EraseStroke(index int)
}

// Sender pushes an encoded message onto the broadcast channel
type Sender interface {
	SendMessage(data []byte) error
}

// Replays s onto surface as a programmatic gesture
func drawStroke(surface Surface, s stroke.Stroke) {
	n := s.Len()
	surface.BeginStrokeAt(s.X[0], s.Y[0], -1, true)
	for i := 1; i < n-1; i++ {
		surface.UpdateStroke(s.X[i], s.Y[i])
	}
	surface.EndStrokeAt(s.X[n-1], s.Y[n-1], true)
}
