// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// Store holds triage records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*triage.Record // record ID -> record
	byReq   map[string]string         // request ID -> record ID (idempotency)
	order   []string                  // insertion order of record IDs
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*triage.Record),
		byReq:   make(map[string]string),
	}
}

// Get retrieves a triage record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// GetByRequestID retrieves a triage record by request ID, for idempotent
// resubmission. Returns a copy.
func (s *Store) GetByRequestID(_ context.Context, requestID string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReq[requestID]
	if !ok {
		return nil, false, nil
	}
	r := s.records[id]
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the triage record.
func (s *Store) Put(_ context.Context, r *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	cp := *r
	s.records[r.ID] = &cp
	if r.RequestID != "" {
		s.byReq[r.RequestID] = r.ID
	}
	return nil
}

// List returns up to limit records, newest first. Returns copies.
func (s *Store) List(_ context.Context, limit int) ([]*triage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*triage.Record, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.records[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
