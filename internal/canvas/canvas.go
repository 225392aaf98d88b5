package canvas

import (
	"sync"
)

type Point struct {
	X, Y float64
}

// Canvas is a headless render surface. It keeps the point list of every
// finished stroke in surface order and can snapshot itself to PNG or PDF.
type Canvas struct {
	Width  int
	Height int

	strokes [][]Point
	current []Point
	active  bool
	mu      sync.RWMutex
}

func New(width, height int) *Canvas {
	return &Canvas{
		Width:   width,
		Height:  height,
		strokes: make([][]Point, 0),
	}
}

func (c *Canvas) NumStrokes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.strokes)
}

// Starts a gesture. Inserting at idx is not supported; strokes always append.
func (c *Canvas) BeginStrokeAt(x, y float64, idx int, programmatic bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = []Point{{x, y}}
	c.active = true
}

func (c *Canvas) UpdateStroke(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current = append(c.current, Point{x, y})
}

func (c *Canvas) EndStrokeAt(x, y float64, programmatic bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current = append(c.current, Point{x, y})
	c.strokes = append(c.strokes, c.current)
	c.current = nil
	c.active = false
}

func (c *Canvas) EraseStroke(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.strokes) {
		return
	}
	c.strokes = append(c.strokes[:index], c.strokes[index+1:]...)
}

// Points of the gesture in progress, nil when idle
func (c *Canvas) Current() []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.active {
		return nil
	}
	out := make([]Point, len(c.current))
	copy(out, c.current)
	return out
}

// Returns a copy of every finished stroke in surface order
func (c *Canvas) Strokes() [][]Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]Point, len(c.strokes))
	for i, s := range c.strokes {
		out[i] = make([]Point, len(s))
		copy(out[i], s)
	}
	return out
}
