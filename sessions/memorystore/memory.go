// Package memorystore is an in-memory sessions.Store for tests and
// single-process runs.
package memorystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/authgate/sessions"
)

var errClosed = errors.New("memorystore: closed")

// Store keeps JSON-encoded records so callers never share mutable state
// with the store.
type Store struct {
	mu      sync.RWMutex
	env     string
	records map[string][]byte
	closed  bool
}

var _ sessions.Store = (*Store)(nil)

// New creates an empty store scoped to environment.
func New(environment string) *Store {
	return &Store{env: environment, records: map[string][]byte{}}
}

// Get implements sessions.Store.
func (s *Store) Get(_ context.Context, subject string) (*sessions.Record, bool) {
	s.mu.RLock()
	b, ok := s.records[sessions.Key(s.env, subject)]
	closed := s.closed
	s.mu.RUnlock()
	if !ok || closed {
		return nil, false
	}
	var rec *sessions.Record
	if err := json.Unmarshal(b, &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// Set implements sessions.Store.
func (s *Store) Set(_ context.Context, subject string, rec *sessions.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", sessions.ErrWriteFailed)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", sessions.ErrWriteFailed, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %v", sessions.ErrWriteFailed, errClosed)
	}
	s.records[sessions.Key(s.env, subject)] = b
	return nil
}

// SetRaw stores an arbitrary value under subject, bypassing encoding.
func (s *Store) SetRaw(subject string, value []byte) {
	s.mu.Lock()
	s.records[sessions.Key(s.env, subject)] = append([]byte(nil), value...)
	s.mu.Unlock()
}

// Close implements sessions.Store. Reads after Close miss.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
