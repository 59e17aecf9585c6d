package store

import (
	"context"
	"sort"
	"sync"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
)

// DefaultMemoryCapacity bounds a MemoryAuditStore created with capacity 0.
const DefaultMemoryCapacity = 10000

// MemoryAuditStore keeps the most recent audit events in memory.
// It is thread-safe and supports concurrent access.
type MemoryAuditStore struct {
	mu       sync.RWMutex
	events   []*logging.AuditEvent
	byID     map[string]*logging.AuditEvent
	capacity int
}

// NewMemoryAuditStore creates a store holding at most capacity events. The
// oldest events are evicted first.
func NewMemoryAuditStore(capacity int) *MemoryAuditStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryAuditStore{
		byID:     make(map[string]*logging.AuditEvent),
		capacity: capacity,
	}
}

// SaveEvent stores a copy of the event
func (s *MemoryAuditStore) SaveEvent(event *logging.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.events = append(s.events, &e)
	s.byID[e.ID] = &e

	if over := len(s.events) - s.capacity; over > 0 {
		for _, old := range s.events[:over] {
			delete(s.byID, old.ID)
		}
		s.events = append([]*logging.AuditEvent(nil), s.events[over:]...)
	}
	return nil
}

// SaveEventAsync is synchronous; memory writes never block for long.
func (s *MemoryAuditStore) SaveEventAsync(event *logging.AuditEvent) {
	_ = s.SaveEvent(event)
}

func matches(e *logging.AuditEvent, f logging.AuditQueryFilters) bool {
	if f.EventType != "" && string(e.EventType) != f.EventType {
		return false
	}
	if f.Status != "" && string(e.Status) != f.Status {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func (s *MemoryAuditStore) QueryEvents(_ context.Context, filters logging.AuditQueryFilters) ([]*logging.AuditEvent, error) {
	s.mu.RLock()
	var out []*logging.AuditEvent
	for _, e := range s.events {
		if matches(e, filters) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if filters.OrderDesc {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *MemoryAuditStore) CountEvents(_ context.Context, filters logging.AuditQueryFilters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if matches(e, filters) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryAuditStore) GetEventByID(_ context.Context, id string) (*logging.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id], nil
}

// Len returns the number of retained events
func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *MemoryAuditStore) Close() error {
	return nil
}
