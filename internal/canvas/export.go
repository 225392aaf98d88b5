package canvas

import (
	"fmt"
	"image/png"
	"io"

	"github.com/fogleman/gg"
	"github.com/jung-kurt/gofpdf"
)

const (
	lineWidth = 2.0
	dotRadius = 1.5
)

// WritePNG renders black strokes on white at the canvas size
func (c *Canvas) WritePNG(w io.Writer) error {
	dc := gg.NewContext(c.Width, c.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(lineWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, s := range c.snapshot() {
		if len(s) == 0 {
			continue
		}
		if isDot(s) {
			dc.DrawCircle(s[0].X, s[0].Y, dotRadius)
			dc.Fill()
			continue
		}
		dc.MoveTo(s[0].X, s[0].Y)
		for _, p := range s[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.Stroke()
	}

	if err := png.Encode(w, dc.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// WritePDF renders a single page sized to the canvas, in points
func (c *Canvas) WritePDF(w io.Writer) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: float64(c.Width), Ht: float64(c.Height)},
	})
	pdf.AddPage()
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetFillColor(0, 0, 0)
	pdf.SetLineWidth(lineWidth)
	pdf.SetLineCapStyle("round")

	for _, s := range c.snapshot() {
		if len(s) == 0 {
			continue
		}
		if isDot(s) {
			pdf.Circle(s[0].X, s[0].Y, dotRadius, "F")
			continue
		}
		for i := 1; i < len(s); i++ {
			pdf.Line(s[i-1].X, s[i-1].Y, s[i].X, s[i].Y)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// Finished strokes plus the gesture still being drawn, which renders on top
func (c *Canvas) snapshot() [][]Point {
	strokes := c.Strokes()
	if cur := c.Current(); cur != nil {
		strokes = append(strokes, cur)
	}
	return strokes
}

// A stroke that never left its first point
func isDot(s []Point) bool {
	for _, p := range s[1:] {
		if p != s[0] {
			return false
		}
	}
	return true
}
