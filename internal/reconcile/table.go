package reconcile

import (
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// A stroke known to this engine, plus the render slot it occupies once drawn
type entry struct {
	stroke stroke.Stroke
	slot   *slot
}

func (e *entry) materialized() bool {
	return e.slot.live()
}

// Render index of the entry, or -1 while only logically known
func (e *entry) localIndex() int {
	if !e.slot.live() {
		return -1
	}
	return e.slot.index
}

type peerRecord struct {
	id      string
	entries []*entry
}

// peerTable keeps records in first-seen order. Replacing a record keeps its
// position; deleting removes it.
type peerTable struct {
	order   []string
	records map[string]*peerRecord
}

func newPeerTable() *peerTable {
	return &peerTable{
		records: make(map[string]*peerRecord),
	}
}

func (p *peerTable) get(id string) (*peerRecord, bool) {
	r, ok := p.records[id]
	return r, ok
}

// Inserts or overwrites the record for id and returns the previous one
func (p *peerTable) put(id string, entries []*entry) *peerRecord {
	prev, ok := p.records[id]
	if !ok {
		p.order = append(p.order, id)
	}
	p.records[id] = &peerRecord{id: id, entries: entries}
	return prev
}

func (p *peerTable) remove(id string) bool {
	if _, ok := p.records[id]; !ok {
		return false
	}
	delete(p.records, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Drops the last entry of id's record; false if there was nothing to drop
func (p *peerTable) dropTail(id string) bool {
	r, ok := p.records[id]
	if !ok || len(r.entries) == 0 {
		return false
	}
	r.entries = r.entries[:len(r.entries)-1]
	return true
}

// Calls fn for each record in order
func (p *peerTable) each(fn func(r *peerRecord)) {
	for _, id := range p.order {
		fn(p.records[id])
	}
}
