package reconcile

import (
	"context"

	"github.com/golang/glog"
)

type command struct {
	fn   func(*Engine) error
	done chan error
}

// Loop owns an Engine on one goroutine. Inbound messages and local commands
// are applied one at a time, each to completion, in arrival order.
type Loop struct {
	engine   *Engine
	commands chan command
}

func NewLoop(engine *Engine) *Loop {
	return &Loop{
		engine:   engine,
		commands: make(chan command),
	}
}

// Run serves inbound and queued commands until ctx is done. A closed inbound
// channel only stops remote events; local commands keep working.
func (l *Loop) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case data, ok := <-inbound:
			if !ok {
				glog.V(1).Infof("inbound channel closed, continuing offline")
				inbound = nil
				continue
			}
			l.engine.Apply(data)

		case cmd := <-l.commands:
			cmd.done <- cmd.fn(l.engine)
		}
	}
}

// Do runs fn on the loop goroutine and waits for its result
func (l *Loop) Do(ctx context.Context, fn func(*Engine) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case l.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
