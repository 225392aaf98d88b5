package bus

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("bus closed")

// Handler receives every frame published to any room
type Handler func(roomID string, data []byte)

// Bus fans room traffic out to every relay instance, including the one that
// published it. Frames from a single publisher arrive in publish order.
type Bus interface {
	Publish(ctx context.Context, roomID string, data []byte) error

	// Subscribe installs handler and returns once it is receiving
	Subscribe(ctx context.Context, handler Handler) error

	Close() error
}
