package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Cache is a mock implementation of cache.Cache
type Cache struct {
	mock.Mock
}

// Get retrieves a cache entry
func (m *Cache) Get(ctx context.Context, key string) (domain.Geo, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.Geo), args.Bool(1), args.Error(2)
}

// Set stores a cache entry
func (m *Cache) Set(ctx context.Context, key string, geo domain.Geo) error {
	args := m.Called(ctx, key, geo)
	return args.Error(0)
}

// Delete removes a cache entry
func (m *Cache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Close closes the cache
func (m *Cache) Close() error {
	args := m.Called()
	return args.Error(0)
}
