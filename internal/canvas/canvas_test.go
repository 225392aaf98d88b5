package canvas

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/go-playground/assert/v2"
)

func drawLine(c *Canvas, points ...Point) {
	c.BeginStrokeAt(points[0].X, points[0].Y, -1, true)
	for _, p := range points[1 : len(points)-1] {
		c.UpdateStroke(p.X, p.Y)
	}
	last := points[len(points)-1]
	c.EndStrokeAt(last.X, last.Y, true)
}

func TestCanvasAppendAndErase(t *testing.T) {
	c := New(100, 100)

	drawLine(c, Point{0, 0}, Point{5, 5}, Point{10, 10})
	drawLine(c, Point{1, 1}, Point{2, 2})
	drawLine(c, Point{3, 3}, Point{4, 4})
	assert.Equal(t, 3, c.NumStrokes())

	c.EraseStroke(1)
	assert.Equal(t, 2, c.NumStrokes())

	strokes := c.Strokes()
	assert.Equal(t, []Point{{0, 0}, {5, 5}, {10, 10}}, strokes[0])
	assert.Equal(t, []Point{{3, 3}, {4, 4}}, strokes[1])

	// out of range is ignored
	c.EraseStroke(7)
	assert.Equal(t, 2, c.NumStrokes())
}

func TestCanvasGestureInProgress(t *testing.T) {
	c := New(100, 100)

	c.BeginStrokeAt(1, 1, -1, false)
	c.UpdateStroke(2, 2)
	assert.Equal(t, 0, c.NumStrokes())
	assert.Equal(t, []Point{{1, 1}, {2, 2}}, c.Current())

	c.EndStrokeAt(3, 3, false)
	assert.Equal(t, 1, c.NumStrokes())
	assert.Equal(t, true, c.Current() == nil)

	// stray updates without a gesture do nothing
	c.UpdateStroke(9, 9)
	c.EndStrokeAt(9, 9, false)
	assert.Equal(t, 1, c.NumStrokes())
}

func TestWritePNG(t *testing.T) {
	c := New(64, 48)
	drawLine(c, Point{0, 0}, Point{63, 47})
	drawLine(c, Point{10, 10}, Point{10, 10})

	var buf bytes.Buffer
	if err := c.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestWritePNGIncludesGestureInProgress(t *testing.T) {
	c := New(40, 40)
	c.BeginStrokeAt(0, 20, -1, false)
	c.UpdateStroke(39, 20)

	var buf bytes.Buffer
	if err := c.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}

	r, g, b, _ := img.At(20, 20).RGBA()
	if r > 0x8000 || g > 0x8000 || b > 0x8000 {
		t.Errorf("Expected the open gesture to be drawn at (20,20), got %d,%d,%d", r, g, b)
	}
	// nothing was finished, the snapshot does not end the gesture
	assert.Equal(t, 0, c.NumStrokes())
	assert.Equal(t, 2, len(c.Current()))
}

func TestWritePDF(t *testing.T) {
	c := New(200, 100)
	drawLine(c, Point{0, 0}, Point{50, 50}, Point{100, 0})

	var buf bytes.Buffer
	if err := c.WritePDF(&buf); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("Output should start with a PDF header")
	}
}
