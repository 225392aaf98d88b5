package room

import (
	"sync"
)

// Room is the live membership of one drawing surface on this relay
type Room struct {
	ID string

	members  map[string]chan []byte
	order    []string
	messages int
	mu       sync.RWMutex
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]chan []byte),
	}
}

// Adds a member and returns the new size. A peer id already present is
// replaced and its old channel closed.
func (r *Room) Add(peerID string, send chan []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.members[peerID]; ok {
		close(old)
		r.forget(peerID)
	}
	r.members[peerID] = send
	r.order = append(r.order, peerID)
	return len(r.members)
}

// Removes a member and closes its channel. Reports whether it was present.
func (r *Room) Remove(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	send, ok := r.members[peerID]
	if !ok {
		return false
	}
	close(send)
	delete(r.members, peerID)
	r.forget(peerID)
	return true
}

// Delivers data to every member without blocking. Members whose buffers are
// full are removed and returned.
func (r *Room) Broadcast(data []byte) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages++

	var dropped []string
	for _, peerID := range r.order {
		select {
		case r.members[peerID] <- data:
		default:
			dropped = append(dropped, peerID)
		}
	}
	for _, peerID := range dropped {
		close(r.members[peerID])
		delete(r.members, peerID)
		r.forget(peerID)
	}
	return dropped
}

// Peer ids in join order
func (r *Room) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Frames broadcast since the room was opened
func (r *Room) Messages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.messages
}

func (r *Room) forget(peerID string) {
	for i, id := range r.order {
		if id == peerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
