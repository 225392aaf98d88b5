package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manpreetbhatti/inkwell/internal/canvas"
	"github.com/manpreetbhatti/inkwell/internal/reconcile"
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

type Command struct {
	Name   string
	Points [][2]float64
	Wait   time.Duration
	Path   string
	Line   int
}

// ParseScript reads one command per line. Blank lines and lines starting
// with # are skipped.
func ParseScript(r io.Reader) ([]Command, error) {
	var commands []Command
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cmd, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cmd.Line = line
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return commands, nil
}

func parseLine(text string) (Command, error) {
	fields := strings.Fields(text)
	cmd := Command{Name: fields[0]}
	args := fields[1:]

	switch cmd.Name {
	case "undo", "clear", "send", "status":
		if len(args) != 0 {
			return cmd, fmt.Errorf("%s takes no arguments", cmd.Name)
		}

	case "draw":
		if len(args) == 0 {
			return cmd, fmt.Errorf("draw needs at least one point")
		}
		for _, arg := range args {
			p, err := parsePoint(arg)
			if err != nil {
				return cmd, err
			}
			cmd.Points = append(cmd.Points, p)
		}

	case "wait":
		if len(args) != 1 {
			return cmd, fmt.Errorf("wait takes a duration")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return cmd, fmt.Errorf("wait: %w", err)
		}
		cmd.Wait = d

	case "png", "pdf":
		if len(args) != 1 {
			return cmd, fmt.Errorf("%s takes a path", cmd.Name)
		}
		cmd.Path = args[0]

	default:
		return cmd, fmt.Errorf("unknown command %q", cmd.Name)
	}
	return cmd, nil
}

func parsePoint(arg string) ([2]float64, error) {
	xs, ys, ok := strings.Cut(arg, ",")
	if !ok {
		return [2]float64{}, fmt.Errorf("point %q is not x,y", arg)
	}
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("point %q: %w", arg, err)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("point %q: %w", arg, err)
	}
	return [2]float64{x, y}, nil
}

// Session plays commands against a running engine loop
type Session struct {
	loop   *reconcile.Loop
	canvas *canvas.Canvas
	out    io.Writer
}

func NewSession(loop *reconcile.Loop, c *canvas.Canvas, out io.Writer) *Session {
	return &Session{loop: loop, canvas: c, out: out}
}

func (s *Session) Run(ctx context.Context, commands []Command) error {
	for _, cmd := range commands {
		if err := s.Exec(ctx, cmd); err != nil {
			return fmt.Errorf("line %d (%s): %w", cmd.Line, cmd.Name, err)
		}
	}
	return nil
}

func (s *Session) Exec(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case "draw":
		return s.loop.Do(ctx, func(e *reconcile.Engine) error {
			e.BeginStroke()
			e.EndStroke(s.gesture(cmd.Points))
			return nil
		})

	case "undo":
		return s.loop.Do(ctx, (*reconcile.Engine).Undo)

	case "clear":
		return s.loop.Do(ctx, (*reconcile.Engine).Clear)

	case "send":
		return s.loop.Do(ctx, (*reconcile.Engine).Send)

	case "wait":
		timer := time.NewTimer(cmd.Wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case "png":
		return s.loop.Do(ctx, func(*reconcile.Engine) error {
			return writeFile(cmd.Path, s.canvas.WritePNG)
		})

	case "pdf":
		return s.loop.Do(ctx, func(*reconcile.Engine) error {
			return writeFile(cmd.Path, s.canvas.WritePDF)
		})

	case "status":
		return s.loop.Do(ctx, func(e *reconcile.Engine) error {
			status := struct {
				reconcile.Stats
				Consistent bool   `json:"consistent"`
				Problem    string `json:"problem,omitempty"`
			}{Stats: e.Stats(), Consistent: true}
			if err := e.Verify(); err != nil {
				status.Consistent = false
				status.Problem = err.Error()
			}
			return json.NewEncoder(s.out).Encode(status)
		})
	}
	return fmt.Errorf("unknown command %q", cmd.Name)
}

// Draws points onto the canvas as a user gesture and returns the stroke the
// canvas recorded
func (s *Session) gesture(points [][2]float64) stroke.Stroke {
	first, last := points[0], points[len(points)-1]
	s.canvas.BeginStrokeAt(first[0], first[1], -1, false)
	recorded := [][2]float64{first}
	if len(points) > 1 {
		for _, p := range points[1 : len(points)-1] {
			s.canvas.UpdateStroke(p[0], p[1])
			recorded = append(recorded, p)
		}
	}
	s.canvas.EndStrokeAt(last[0], last[1], false)
	recorded = append(recorded, last)
	return stroke.FromPoints(recorded...)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
