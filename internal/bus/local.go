package bus

import (
	"context"
	"sync"
)

// Local delivers in-process for a single relay instance
type Local struct {
	handlers []Handler
	closed   bool
	mu       sync.RWMutex
}

func NewLocal() *Local {
	return &Local{}
}

// Handlers run synchronously on the publishing goroutine
func (l *Local) Publish(ctx context.Context, roomID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	for _, h := range l.handlers {
		h(roomID, data)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.handlers = append(l.handlers, handler)
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = nil
	return nil
}
