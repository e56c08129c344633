package valuation

// ActiveSet is an unordered set of instrument ids with O(1) insert, lookup and
// removal. Removal moves the last element into the freed slot, so iteration
// order is not stable across removals.
type ActiveSet struct {
	ids   []uint64
	index map[uint64]int
}

// NewActiveSet builds a set from ids, skipping duplicates.
func NewActiveSet(ids ...uint64) *ActiveSet {
	set := &ActiveSet{index: make(map[uint64]int, len(ids))}
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts id and reports whether it was absent.
func (s *ActiveSet) Add(id uint64) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	return true
}

// Remove deletes id and reports whether it was present.
func (s *ActiveSet) Remove(id uint64) bool {
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	last := len(s.ids) - 1
	if pos != last {
		moved := s.ids[last]
		s.ids[pos] = moved
		s.index[moved] = pos
	}
	s.ids = s.ids[:last]
	delete(s.index, id)
	return true
}

func (s *ActiveSet) Contains(id uint64) bool {
	_, ok := s.index[id]
	return ok
}

func (s *ActiveSet) Len() int { return len(s.ids) }

// IDs returns a copy of the arena in its current order.
func (s *ActiveSet) IDs() []uint64 {
	out := make([]uint64, len(s.ids))
	copy(out, s.ids)
	return out
}
