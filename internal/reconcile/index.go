package reconcile

// A render position held by one materialized stroke. The index is kept equal
// to the slot's position in the owning table; -1 once released.
type slot struct {
	index int
}

func (s *slot) live() bool {
	return s != nil && s.index >= 0
}

// indexTable is the single authority on render-surface indices. Every
// removal, whatever its cause, goes through release so that the slots after
// it are renumbered in one place.
type indexTable struct {
	slots []*slot
}

func (t *indexTable) Len() int {
	return len(t.slots)
}

func (t *indexTable) at(i int) *slot {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}

// Claims the next index, matching a stroke just appended to the surface
func (t *indexTable) assign() *slot {
	s := &slot{index: len(t.slots)}
	t.slots = append(t.slots, s)
	return s
}

// Frees index i and shifts every later slot down by one
func (t *indexTable) release(i int) {
	if i < 0 || i >= len(t.slots) {
		return
	}
	released := t.slots[i]
	t.slots = append(t.slots[:i], t.slots[i+1:]...)
	for j := i; j < len(t.slots); j++ {
		t.slots[j].index = j
	}
	released.index = -1
}
