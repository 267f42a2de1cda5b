package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
)

// Store implements ports.ModelStore in memory.
// Safe for concurrent use. Subscribers are notified outside the store lock, one
// notification per field at a time, always with the field's latest value: the writer
// that finds no notification in progress delivers until the subscribers have seen the
// last write. Writes that land meanwhile are folded into that loop, so a subscriber may
// skip an intermediate value but never observes values out of order.
type Store struct {
	data       map[ports.Field]json.RawMessage
	version    map[ports.Field]uint64
	delivered  map[ports.Field]uint64
	delivering map[ports.Field]bool
	subs       map[ports.Field]map[int]ports.ChangeFunc
	nextID     int
	mu         sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:       make(map[ports.Field]json.RawMessage),
		version:    make(map[ports.Field]uint64),
		delivered:  make(map[ports.Field]uint64),
		delivering: make(map[ports.Field]bool),
		subs:       make(map[ports.Field]map[int]ports.ChangeFunc),
	}
}

// Get returns a copy of the stored value.
func (s *Store) Get(ctx context.Context, field ports.Field) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[field]
	if !ok {
		return nil, domain.ErrFieldNotFound
	}
	// Copy on read so callers can't mutate store state through the slice.
	return append(json.RawMessage(nil), value...), nil
}

// Set replaces the value and notifies subscribers of the field.
func (s *Store) Set(ctx context.Context, field ports.Field, value json.RawMessage) error {
	copied := append(json.RawMessage(nil), value...)

	s.mu.Lock()
	s.data[field] = copied
	s.version[field]++
	if s.delivering[field] {
		// The running delivery loop picks this write up.
		s.mu.Unlock()
		return nil
	}
	s.delivering[field] = true
	s.mu.Unlock()

	s.deliver(field)
	return nil
}

// deliver notifies subscribers until they have seen the latest version of field.
func (s *Store) deliver(field ports.Field) {
	done := false
	defer func() {
		// A panicking subscriber must not leave the field stuck in delivery.
		if !done {
			s.mu.Lock()
			s.delivering[field] = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if s.delivered[field] == s.version[field] {
			s.delivering[field] = false
			s.mu.Unlock()
			done = true
			return
		}
		s.delivered[field] = s.version[field]
		value := s.data[field]
		fns := make([]ports.ChangeFunc, 0, len(s.subs[field]))
		for _, fn := range s.subs[field] {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(append(json.RawMessage(nil), value...))
		}
	}
}

// Subscribe registers fn for changes of field.
func (s *Store) Subscribe(ctx context.Context, field ports.Field, fn ports.ChangeFunc) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if _, ok := s.subs[field]; !ok {
		s.subs[field] = make(map[int]ports.ChangeFunc)
	}
	s.subs[field][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[field], id)
			if len(s.subs[field]) == 0 {
				delete(s.subs, field)
			}
		})
	}, nil
}

// Snapshot returns a copy of every written field.
func (s *Store) Snapshot() map[ports.Field]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ports.Field]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
