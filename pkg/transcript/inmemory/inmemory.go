// Package inmemory provides a transcript store backed by an in-memory map.
// Intended for tests and the memory storage driver; records do not survive
// process restarts.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/patchbay/pkg/transcript"
)

const defaultSearchLimit = 20

// Store implements transcript.Store using an in-memory map.
type Store struct {
	// mu guards records and order.
	mu sync.RWMutex

	// records maps record id to the stored record.
	records map[string]*transcript.Record

	// order tracks insertion order so List is deterministic.
	order []string
}

// NewStore creates an empty in-memory transcript store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*transcript.Record),
	}
}

// Save persists a record, overwriting any existing record with the same id.
func (s *Store) Save(_ context.Context, rec *transcript.Record) error {
	if rec == nil {
		return errors.New("cannot save nil record")
	}
	if rec.ID == "" {
		return errors.New("cannot save record without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec

	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(_ context.Context, id string) (*transcript.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, transcript.ErrNotFound
	}

	return rec, nil
}

// List returns records in insertion order, filtered by conversation id when
// one is given.
func (s *Store) List(_ context.Context, conversationID string) ([]*transcript.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transcript.Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if conversationID != "" && rec.ConversationID != conversationID {
			continue
		}
		result = append(result, rec)
	}

	return result, nil
}

// Search returns records whose text contains the query, case-insensitively,
// newest first.
func (s *Store) Search(_ context.Context, query string, limit int) ([]*transcript.Record, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)

	var matches []*transcript.Record
	for _, id := range s.order {
		rec := s.records[id]
		if strings.Contains(strings.ToLower(rec.SearchText()), needle) {
			matches = append(matches, rec)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
