package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// LinkStore is a mock implementation of store.LinkStore
type LinkStore struct {
	mock.Mock
}

// Has reports whether a code exists
func (m *LinkStore) Has(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// Get retrieves a record by code
func (m *LinkStore) Get(ctx context.Context, code string) (*domain.LinkRecord, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LinkRecord), args.Error(1)
}

// Insert stores a record
func (m *LinkStore) Insert(ctx context.Context, record *domain.LinkRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// AppendClick appends a click event
func (m *LinkStore) AppendClick(ctx context.Context, code string, event domain.ClickEvent) error {
	args := m.Called(ctx, code, event)
	return args.Error(0)
}

// Close closes the store
func (m *LinkStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
