package rpc

import (
	"sync"

	"loanledger/core/events"
	"loanledger/core/types"
)

const defaultFeedCapacity = 1024

// EventFeed retains the most recent committed-operation events for external
// observers. It satisfies the events.Emitter interface; records are
// append-only and never retracted, older entries simply fall out of the
// window.
type EventFeed struct {
	mu      sync.RWMutex
	records []types.Event
	cap     int
}

// NewEventFeed constructs a feed holding up to capacity records. A
// non-positive capacity falls back to the default.
func NewEventFeed(capacity int) *EventFeed {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	return &EventFeed{cap: capacity}
}

// Emit implements events.Emitter.
func (f *EventFeed) Emit(evt events.Event) {
	record := events.ToRecord(evt)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	if len(f.records) > f.cap {
		f.records = f.records[len(f.records)-f.cap:]
	}
}

// Events returns a snapshot of the retained records, oldest first.
func (f *EventFeed) Events() []types.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snapshot := make([]types.Event, len(f.records))
	copy(snapshot, f.records)
	return snapshot
}
