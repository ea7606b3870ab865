package memory

import (
	"context"
	"sync"

	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/store"
)

// Store implements store.LinkStore using in-memory storage
type Store struct {
	data  map[string]*domain.LinkRecord
	mutex sync.RWMutex
}

// New creates a new in-memory link store
func New() *Store {
	return &Store{
		data: make(map[string]*domain.LinkRecord),
	}
}

// Has reports whether a code exists
func (s *Store) Has(ctx context.Context, code string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.data[code]
	return exists, nil
}

// Get retrieves a copy of the record for code
func (s *Store) Get(ctx context.Context, code string) (*domain.LinkRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.data[code]
	if !exists {
		return nil, domain.ErrNotFound
	}

	// Return a copy to prevent external modification
	return record.Clone(), nil
}

// Insert stores a copy of record if its code is free
func (s *Store) Insert(ctx context.Context, record *domain.LinkRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[record.Code]; exists {
		return domain.ErrAlreadyExists
	}

	s.data[record.Code] = record.Clone()
	return nil
}

// AppendClick appends event to the history of code
func (s *Store) AppendClick(ctx context.Context, code string, event domain.ClickEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, exists := s.data[code]
	if !exists {
		return domain.ErrNotFound
	}

	record.Clicks = append(record.Clicks, event)
	return nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.data)
}

// Close is a no-op for the memory store
func (s *Store) Close() error {
	return nil
}

// Ensure Store implements the interface
var _ store.LinkStore = (*Store)(nil)
