package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/manpreetbhatti/inkwell/internal/bus"
	"github.com/manpreetbhatti/inkwell/internal/db"
	"github.com/manpreetbhatti/inkwell/internal/ratelimit"
	"github.com/manpreetbhatti/inkwell/internal/room"
)

type Limits struct {
	MessagesPerSecond float64
	Burst             int

	// Rejected frames tolerated before the connection is dropped
	MaxViolations int
}

func DefaultLimits() Limits {
	return Limits{
		MessagesPerSecond: 100,
		Burst:             200,
		MaxViolations:     1000,
	}
}

// Hub tracks the peers connected to this relay, grouped by room, and hands
// every frame that arrives on the bus to all members of its room.
type Hub struct {
	// Live rooms by id
	rooms map[string]*room.Room

	// Frames coming off the bus
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	database *db.Database
	bus      bus.Bus
	limits   Limits
	limiters *ratelimit.ClientLimiters
	ctx      context.Context

	mu sync.RWMutex
}

type Message struct {
	RoomID string
	Data   []byte
}

// A nil database disables the session registry. A nil bus keeps traffic
// inside this process.
func NewHub(database *db.Database, b bus.Bus) *Hub {
	if b == nil {
		b = bus.NewLocal()
	}
	limits := DefaultLimits()
	return &Hub{
		rooms:      make(map[string]*room.Room),
		broadcast:  make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		database:   database,
		bus:        b,
		limits:     limits,
		limiters:   ratelimit.NewClientLimiters(limits.MessagesPerSecond, limits.Burst),
		ctx:        context.Background(),
	}
}

// Must be called before Start
func (h *Hub) SetLimits(limits Limits) {
	h.limiters.Stop()
	h.limits = limits
	h.limiters = ratelimit.NewClientLimiters(limits.MessagesPerSecond, limits.Burst)
}

// Start subscribes to the bus and runs the hub until ctx is done
func (h *Hub) Start(ctx context.Context) error {
	h.ctx = ctx
	err := h.bus.Subscribe(ctx, func(roomID string, data []byte) {
		select {
		case h.broadcast <- &Message{RoomID: roomID, Data: data}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to bus: %w", err)
	}

	go h.run(ctx)
	return nil
}

// Publish sends a stamped frame to every relay instance sharing the bus
func (h *Hub) Publish(roomID string, data []byte) error {
	return h.bus.Publish(h.ctx, roomID, data)
}

func (h *Hub) run(ctx context.Context) {
	defer h.limiters.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			// the registry row exists before the peer is visible as a member
			if h.database != nil {
				if err := h.database.OpenSession(client.peerID, client.roomID); err != nil {
					glog.Warningf("Failed to record session for peer %s: %v", client.peerID, err)
				}
			}

			h.mu.Lock()
			r, ok := h.rooms[client.roomID]
			if !ok {
				r = room.NewRoom(client.roomID)
				h.rooms[client.roomID] = r
			}
			clientCount := r.Add(client.peerID, client.send)
			h.mu.Unlock()

			glog.Infof("Peer %s joined room %s (total: %d)", client.peerID, client.roomID, clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if r, ok := h.rooms[client.roomID]; ok {
				r.Remove(client.peerID)
				if r.Len() == 0 {
					delete(h.rooms, client.roomID)
					glog.Infof("Room %s closed (empty)", client.roomID)
				} else {
					glog.Infof("Peer %s left room %s (remaining: %d)", client.peerID, client.roomID, r.Len())
				}
			}
			h.mu.Unlock()

			h.limiters.Remove(client.peerID)
			if h.database != nil {
				if err := h.database.CloseSession(client.peerID); err != nil {
					glog.Warningf("Failed to close session for peer %s: %v", client.peerID, err)
				}
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			if r, ok := h.rooms[message.RoomID]; ok {
				for _, peerID := range r.Broadcast(message.Data) {
					glog.Warningf("Dropped slow peer %s from room %s", peerID, message.RoomID)
				}
				if r.Len() == 0 {
					delete(h.rooms, message.RoomID)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, r := range h.rooms {
		count += r.Len()
	}
	return count
}

// Peer counts by room id
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for id, r := range h.rooms {
		active[id] = r.Len()
	}
	return active
}

// Peer ids connected to this relay for a room, in join order
func (h *Hub) Peers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.Peers()
	}
	return nil
}

// Frames broadcast in a live room since it opened on this relay
func (h *Hub) RoomMessages(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.Messages()
	}
	return 0
}
