package reconcile

import (
	"testing"

	"github.com/manpreetbhatti/inkwell/internal/protocol"
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// Records what the engine does to the surface
type fakeSurface struct {
	strokes [][][2]float64
	current [][2]float64

	appends int
	erased  []int
}

func (f *fakeSurface) NumStrokes() int {
	return len(f.strokes)
}

func (f *fakeSurface) BeginStrokeAt(x, y float64, idx int, programmatic bool) {
	f.current = [][2]float64{{x, y}}
}

func (f *fakeSurface) UpdateStroke(x, y float64) {
	f.current = append(f.current, [2]float64{x, y})
}

func (f *fakeSurface) EndStrokeAt(x, y float64, programmatic bool) {
	f.current = append(f.current, [2]float64{x, y})
	f.strokes = append(f.strokes, f.current)
	f.current = nil
	if programmatic {
		f.appends++
	}
}

func (f *fakeSurface) EraseStroke(index int) {
	f.strokes = append(f.strokes[:index], f.strokes[index+1:]...)
	f.erased = append(f.erased, index)
}

type fakeSender struct {
	sent [][]byte

	// returned instead of sending when set
	fail error
}

func (f *fakeSender) SendMessage(data []byte) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSender) last(t *testing.T) []byte {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("Nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func newTestEngine() (*Engine, *fakeSurface, *fakeSender) {
	surface := &fakeSurface{}
	sender := &fakeSender{}
	return NewEngine(surface, sender), surface, sender
}

// Simulates the user drawing s by hand, then reports it to the engine
func userDraw(e *Engine, surface *fakeSurface, s stroke.Stroke) {
	e.BeginStroke()
	n := s.Len()
	surface.BeginStrokeAt(s.X[0], s.Y[0], -1, false)
	for i := 1; i < n-1; i++ {
		surface.UpdateStroke(s.X[i], s.Y[i])
	}
	surface.EndStrokeAt(s.X[n-1], s.Y[n-1], false)
	e.EndStroke(s)
}

// Delivers data to e as if the relay had stamped it with peerID
func deliver(t *testing.T, e *Engine, data []byte, peerID string) {
	t.Helper()
	stamped, err := protocol.Stamp(data, peerID)
	if err != nil {
		t.Fatalf("Failed to stamp message: %v", err)
	}
	e.Apply(stamped)
}

func addFrom(t *testing.T, e *Engine, peerID string, strokes ...stroke.Stroke) {
	t.Helper()
	data, err := protocol.AddStrokes(strokes)
	if err != nil {
		t.Fatalf("Failed to encode strokes: %v", err)
	}
	deliver(t, e, data, peerID)
}

func eventFrom(t *testing.T, e *Engine, peerID string, eventType protocol.EventType) {
	t.Helper()
	data, err := protocol.Encode(protocol.Message{EventType: eventType})
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	deliver(t, e, data, peerID)
}

func mustVerify(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Verify(); err != nil {
		t.Fatalf("Invariant violated: %v", err)
	}
}

func line(x0, y0, x1, y1 float64) stroke.Stroke {
	return stroke.FromPoints([2]float64{x0, y0}, [2]float64{x1, y1})
}

// relay broadcasts every message to every engine, sender included, in send
// order. Messages queue until flush so tests control interleaving.
type relay struct {
	t       *testing.T
	ids     []string
	engines map[string]*Engine
	queue   []queued
}

type queued struct {
	from string
	data []byte
}

type relaySender struct {
	r  *relay
	id string
}

func (s *relaySender) SendMessage(data []byte) error {
	s.r.queue = append(s.r.queue, queued{from: s.id, data: data})
	return nil
}

func newRelay(t *testing.T) *relay {
	return &relay{t: t, engines: make(map[string]*Engine)}
}

func (r *relay) join(id string) (*Engine, *fakeSurface) {
	surface := &fakeSurface{}
	e := NewEngine(surface, &relaySender{r: r, id: id})
	r.ids = append(r.ids, id)
	r.engines[id] = e
	return e, surface
}

func (r *relay) flush() {
	r.t.Helper()
	for len(r.queue) > 0 {
		q := r.queue[0]
		r.queue = r.queue[1:]
		for _, id := range r.ids {
			deliver(r.t, r.engines[id], q.data, q.from)
		}
	}
}
