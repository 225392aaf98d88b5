package reconcile

import (
	"fmt"
	"sort"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/manpreetbhatti/inkwell/internal/protocol"
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// Engine merges the local user's strokes with stroke events broadcast by
// peers and keeps the render surface in step with both.
//
// An Engine is not safe for concurrent use. Run it from a single goroutine,
// typically through a Loop.
type Engine struct {
	surface Surface
	sender  Sender

	table indexTable
	local []*entry
	peers *peerTable

	// Confirmed peer id of this session, empty until our first echo arrives
	selfID string

	// Snapshot of the last broadcast, slots included, for echo matching
	lastSent []*entry

	// How many leading local strokes peers currently hold for us
	published int

	drawing bool
	pending bool
}

func NewEngine(surface Surface, sender Sender) *Engine {
	return &Engine{
		surface: surface,
		sender:  sender,
		peers:   newPeerTable(),
	}
}

// Apply decodes and applies one inbound message. Malformed messages are
// dropped; they must never corrupt local state.
func (e *Engine) Apply(data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		glog.V(2).Infof("dropping inbound message: %v", err)
		return
	}
	e.ApplyMessage(m)
}

func (e *Engine) ApplyMessage(m protocol.Message) {
	if m.ID == "" {
		return
	}
	if !m.EventType.Known() {
		glog.V(2).Infof("ignoring %q event from %s", m.EventType, m.ID)
		return
	}

	switch m.EventType {
	case protocol.EventAddStrokes:
		e.applyAdd(m.ID, m.Strokes)

	case protocol.EventUndoStroke:
		if m.ID == e.selfID {
			// already applied by Undo
			return
		}
		if !e.peers.dropTail(m.ID) {
			return
		}

	case protocol.EventDeleteStrokes:
		if m.ID == e.selfID {
			// already applied by Clear
			return
		}
		if !e.peers.remove(m.ID) {
			return
		}
	}

	e.requestResync()
}

func (e *Engine) applyAdd(peerID string, strokes []stroke.Stroke) {
	self := e.isSelf(peerID, strokes)

	var prev []*entry
	if r, ok := e.peers.get(peerID); ok && !self {
		prev = r.entries
	}

	entries := make([]*entry, len(strokes))
	for i, s := range strokes {
		en := &entry{stroke: s.Clone()}
		switch {
		case self:
			if i < len(e.lastSent) && e.lastSent[i].materialized() {
				en.slot = e.lastSent[i].slot
			}
		case i < len(prev) && prev[i].materialized() && stroke.Same(prev[i].stroke, s):
			// unchanged by position, keep it on screen
			en.slot = prev[i].slot
		}
		entries[i] = en
	}

	e.peers.put(peerID, entries)
	glog.V(2).Infof("peer %s now holds %d strokes (self=%t)", peerID, len(entries), self)
}

// Once our own id is known only that id is self. Until then an add event is
// ours if it echoes the last batch we sent.
func (e *Engine) isSelf(peerID string, strokes []stroke.Stroke) bool {
	if e.selfID != "" {
		return peerID == e.selfID
	}

	sent := make([]stroke.Stroke, len(e.lastSent))
	for i, en := range e.lastSent {
		sent[i] = en.stroke
	}
	if !stroke.MatchBatch(strokes, sent) {
		return false
	}

	e.selfID = peerID
	glog.V(1).Infof("identified own peer id %s", peerID)
	return true
}

func (e *Engine) requestResync() {
	if e.drawing {
		e.pending = true
		return
	}
	e.resync()
}

// resync prunes surface strokes that nothing claims any more, then draws
// every remote stroke that has no index yet.
func (e *Engine) resync() {
	e.pending = false

	claimed := make(map[*slot]bool)
	for _, en := range e.local {
		if en.materialized() {
			claimed[en.slot] = true
		}
	}
	e.eachRemote(func(en *entry) {
		if en.materialized() {
			claimed[en.slot] = true
		}
	})

	for i := e.surface.NumStrokes() - 1; i >= 0; i-- {
		if s := e.table.at(i); s != nil && claimed[s] {
			continue
		}
		e.surface.EraseStroke(i)
		e.table.release(i)
	}

	drawn := 0
	e.eachRemote(func(en *entry) {
		if en.materialized() {
			return
		}
		drawStroke(e.surface, en.stroke)
		en.slot = e.table.assign()
		drawn++
	})
	if drawn > 0 {
		glog.V(2).Infof("materialized %d remote strokes, surface now holds %d", drawn, e.surface.NumStrokes())
	}
}

// Visits entries of every record except our own, in record order
func (e *Engine) eachRemote(fn func(en *entry)) {
	e.peers.each(func(r *peerRecord) {
		if r.id == e.selfID {
			return
		}
		for _, en := range r.entries {
			fn(en)
		}
	})
}

// BeginStroke marks a user gesture as in progress. Resyncs wait until it ends.
func (e *Engine) BeginStroke() {
	e.drawing = true
}

// EndStroke records the stroke the user just finished drawing on the surface
// and runs the resync that was held back during the gesture.
func (e *Engine) EndStroke(s stroke.Stroke) {
	e.drawing = false

	en := &entry{stroke: s.Clone(), slot: e.table.assign()}
	if want := e.surface.NumStrokes() - 1; en.slot.index != want {
		glog.Warningf("local stroke took index %d but the surface reports %d", en.slot.index, want)
	}
	e.local = append(e.local, en)

	e.resync()
}

// Undo removes the user's last stroke. undo_stroke is sent only when our peer
// id is known and the popped stroke was part of the last successful Send;
// a stroke drawn after that send never reached peers, so undoing it stays
// local.
func (e *Engine) Undo() error {
	if len(e.local) == 0 {
		return nil
	}

	last := e.local[len(e.local)-1]
	e.local = e.local[:len(e.local)-1]
	e.erase(last)

	if e.selfID == "" || len(e.local) >= e.published {
		return nil
	}
	e.published = len(e.local)
	e.peers.dropTail(e.selfID)

	data, err := protocol.UndoStroke()
	if err != nil {
		return fmt.Errorf("encode undo: %w", err)
	}
	return e.sender.SendMessage(data)
}

// Clear erases every local stroke and, once our peer id is known, tells
// peers to drop our drawing.
func (e *Engine) Clear() error {
	owned := make([]*slot, 0, len(e.local))
	for _, en := range e.local {
		if en.materialized() {
			owned = append(owned, en.slot)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].index > owned[j].index
	})
	for _, s := range owned {
		i := s.index
		e.surface.EraseStroke(i)
		e.table.release(i)
	}

	e.local = nil
	e.published = 0

	if e.selfID == "" {
		return nil
	}
	e.peers.remove(e.selfID)

	data, err := protocol.DeleteStrokes()
	if err != nil {
		return fmt.Errorf("encode delete: %w", err)
	}
	return e.sender.SendMessage(data)
}

// Send broadcasts the whole local stroke log and, once the channel accepts
// it, remembers it for echo matching. Strokes get their remote id on first
// send.
func (e *Engine) Send() error {
	batch := make([]stroke.Stroke, len(e.local))
	sent := make([]*entry, len(e.local))
	for i, en := range e.local {
		if en.stroke.ID == "" {
			en.stroke.ID = uuid.NewString()
		}
		batch[i] = en.stroke.Clone()
		sent[i] = &entry{stroke: batch[i], slot: en.slot}
	}

	data, err := protocol.AddStrokes(batch)
	if err != nil {
		return fmt.Errorf("encode strokes: %w", err)
	}
	if err := e.sender.SendMessage(data); err != nil {
		return err
	}

	// only a batch that left us can echo back or be undone remotely
	e.lastSent = sent
	e.published = len(batch)
	return nil
}

// Rebind forgets the confirmed peer id. The relay hands out a new id per
// connection, so after a reconnect our old record is dropped and the next
// echo identifies us again.
func (e *Engine) Rebind() {
	if e.selfID == "" {
		return
	}
	glog.Infof("dropping peer id %s after reconnect", e.selfID)
	e.peers.remove(e.selfID)
	e.selfID = ""
	e.requestResync()
}

func (e *Engine) erase(en *entry) {
	if !en.materialized() {
		return
	}
	i := en.slot.index
	e.surface.EraseStroke(i)
	e.table.release(i)
}
