package events

import "sync"

// Journal buffers events until Flush so that a failed transition can drop the
// events it emitted. It implements Emitter and the snapshot/revert pair used by
// the state manager.
type Journal struct {
	mu      sync.Mutex
	pending []Event
	sink    Emitter
}

// NewJournal returns a journal forwarding flushed events to sink. A nil sink
// discards them.
func NewJournal(sink Emitter) *Journal {
	if sink == nil {
		sink = NoopEmitter{}
	}
	return &Journal{sink: sink}
}

// Emit appends the event to the pending buffer.
func (j *Journal) Emit(evt Event) {
	if evt == nil {
		return
	}
	j.mu.Lock()
	j.pending = append(j.pending, evt)
	j.mu.Unlock()
}

// Snapshot returns a marker that RevertToSnapshot can roll back to.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// RevertToSnapshot drops every event emitted after the marker.
func (j *Journal) RevertToSnapshot(id int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id < 0 {
		id = 0
	}
	if id < len(j.pending) {
		for i := id; i < len(j.pending); i++ {
			j.pending[i] = nil
		}
		j.pending = j.pending[:id]
	}
}

// Pending returns a copy of the buffered events.
func (j *Journal) Pending() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.pending))
	copy(out, j.pending)
	return out
}

// Flush forwards the buffered events to the sink and clears the buffer. It
// returns the number of events delivered.
func (j *Journal) Flush() int {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	sink := j.sink
	j.mu.Unlock()
	for _, evt := range batch {
		sink.Emit(evt)
	}
	return len(batch)
}

// Discard clears the buffer without delivering anything.
func (j *Journal) Discard() {
	j.mu.Lock()
	j.pending = nil
	j.mu.Unlock()
}
