package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed             = errors.New("channel closed")
	ErrBufferFull         = errors.New("send buffer full")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

type Settings struct {
	URL string

	// Wait between a dropped connection and the next dial
	ReconnectInterval time.Duration

	// Consecutive failed connections tolerated before Run gives up
	MaxReconnects int

	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	SendBuffer       int

	// Larger inbound frames drop the connection
	MaxMessageSize int64
}

func DefaultSettings(url string) Settings {
	return Settings{
		URL:               url,
		ReconnectInterval: 2 * time.Second,
		MaxReconnects:     3,
		HandshakeTimeout:  5 * time.Second,
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		SendBuffer:        256,
		MaxMessageSize:    1024 * 1024,
	}
}

// Client is the peer side of the broadcast channel: a websocket to the relay
// that is redialed when it drops. Delivery is fire-and-forget.
type Client struct {
	settings    Settings
	dialer      *websocket.Dialer
	send        chan []byte
	inbound     chan []byte
	onReconnect func()

	closed    chan struct{}
	closeOnce sync.Once
}

func New(settings Settings) *Client {
	return &Client{
		settings: settings,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		send:    make(chan []byte, settings.SendBuffer),
		inbound: make(chan []byte),
		closed:  make(chan struct{}),
	}
}

// OnReconnect registers fn to run after every successful redial, before any
// message from the new connection is delivered. Set it before Run.
func (c *Client) OnReconnect(fn func()) {
	c.onReconnect = fn
}

// Messages yields inbound frames. It is closed when Run returns.
func (c *Client) Messages() <-chan []byte {
	return c.inbound
}

// SendMessage queues data for the current or next connection without blocking
func (c *Client) SendMessage(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Run dials the relay and keeps the connection alive until ctx is done, Close
// is called, or MaxReconnects consecutive attempts fail.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.inbound)

	failures := 0
	connected := false
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.settings.URL, nil)
		if err == nil {
			if connected {
				glog.Infof("socket: reconnected to %s", c.settings.URL)
				if c.onReconnect != nil {
					c.onReconnect()
				}
			} else {
				glog.V(1).Infof("socket: connection opened to %s", c.settings.URL)
			}
			connected = true
			failures = 0
			err = c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return nil
		}

		failures++
		if failures > c.settings.MaxReconnects {
			return fmt.Errorf("%w after %d tries: %v", ErrReconnectExhausted, failures, err)
		}
		glog.Warningf("socket: %v, trying to reconnect in %v (attempt %d)", err, c.settings.ReconnectInterval, failures)

		timer := time.NewTimer(c.settings.ReconnectInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.closed:
			timer.Stop()
			return nil
		}
	}
}

// Pumps one connection until either side fails
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- c.readPump(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		errs <- c.writePump(ctx, conn)
	}()

	var err error
	select {
	case err = <-errs:
	case <-c.closed:
		err = ErrClosed
	case <-ctx.Done():
		err = ctx.Err()
	}

	cancel()
	conn.Close()
	wg.Wait()
	return err
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) error {
	if c.settings.MaxMessageSize > 0 {
		conn.SetReadLimit(c.settings.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		select {
		case c.inbound <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker((c.settings.PongWait * 9) / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
