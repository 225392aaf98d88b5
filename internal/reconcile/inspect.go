package reconcile

import (
	"fmt"

	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// SelfID is the confirmed peer id of this session, or "" before the first echo
func (e *Engine) SelfID() string {
	return e.selfID
}

func (e *Engine) Drawing() bool {
	return e.drawing
}

// Pending reports a resync held back by an in-progress gesture
func (e *Engine) Pending() bool {
	return e.pending
}

// LocalIndices returns the render index of each local stroke, oldest first
func (e *Engine) LocalIndices() []int {
	out := make([]int, len(e.local))
	for i, en := range e.local {
		out[i] = en.localIndex()
	}
	return out
}

// PeerIDs returns known peers in the order they were first seen
func (e *Engine) PeerIDs() []string {
	out := make([]string, len(e.peers.order))
	copy(out, e.peers.order)
	return out
}

// PeerIndices returns the render index of each stroke of a peer, -1 for
// strokes not drawn locally.
func (e *Engine) PeerIndices(id string) ([]int, bool) {
	r, ok := e.peers.get(id)
	if !ok {
		return nil, false
	}
	out := make([]int, len(r.entries))
	for i, en := range r.entries {
		out[i] = en.localIndex()
	}
	return out, true
}

func (e *Engine) PeerStrokes(id string) ([]stroke.Stroke, bool) {
	r, ok := e.peers.get(id)
	if !ok {
		return nil, false
	}
	out := make([]stroke.Stroke, len(r.entries))
	for i, en := range r.entries {
		out[i] = en.stroke.Clone()
	}
	return out, true
}

type Stats struct {
	Strokes int    `json:"strokes"`
	Local   int    `json:"local"`
	Remote  int    `json:"remote"`
	Peers   int    `json:"peers"`
	SelfID  string `json:"self_id,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		Strokes: e.surface.NumStrokes(),
		Local:   len(e.local),
		Peers:   len(e.peers.order),
		SelfID:  e.selfID,
	}
	e.eachRemote(func(en *entry) {
		if en.materialized() {
			st.Remote++
		}
	})
	return st
}

// Verify checks the dense-index invariant: the render indices held by local
// strokes and by drawn remote strokes are exactly 0..NumStrokes-1, each held
// once. Our own peer record may only point at indices held by local strokes.
func (e *Engine) Verify() error {
	n := e.surface.NumStrokes()
	if e.table.Len() != n {
		return fmt.Errorf("index table holds %d slots, surface holds %d strokes", e.table.Len(), n)
	}
	for i, s := range e.table.slots {
		if s.index != i {
			return fmt.Errorf("slot at position %d reports index %d", i, s.index)
		}
	}

	owners := make(map[int]string, n)
	claim := func(owner string, en *entry) error {
		if !en.materialized() {
			return nil
		}
		i := en.slot.index
		if e.table.at(i) != en.slot {
			return fmt.Errorf("%s stroke holds index %d not owned by the table", owner, i)
		}
		if prev, ok := owners[i]; ok {
			return fmt.Errorf("index %d held by both %s and %s", i, prev, owner)
		}
		owners[i] = owner
		return nil
	}

	for _, en := range e.local {
		if err := claim("local", en); err != nil {
			return err
		}
	}
	var err error
	e.peers.each(func(r *peerRecord) {
		for _, en := range r.entries {
			if err != nil {
				return
			}
			if r.id == e.selfID {
				if en.materialized() && owners[en.slot.index] != "local" {
					err = fmt.Errorf("own record points at index %d not held locally", en.slot.index)
				}
				continue
			}
			err = claim("peer "+r.id, en)
		}
	})
	if err != nil {
		return err
	}

	if len(owners) != n {
		return fmt.Errorf("%d of %d surface strokes are unowned", n-len(owners), n)
	}
	return nil
}
