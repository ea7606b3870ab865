package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// LinkService is a mock implementation of service.LinkService
type LinkService struct {
	mock.Mock
}

// Create stores a new link
func (m *LinkService) Create(ctx context.Context, params domain.CreateLinkParams) (*domain.CreatedLink, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreatedLink), args.Error(1)
}

// Resolve returns the target URL of a code and records a click
func (m *LinkService) Resolve(ctx context.Context, code, clientAddr, referrer string) (string, error) {
	args := m.Called(ctx, code, clientAddr, referrer)
	return args.String(0), args.Error(1)
}

// Inspect returns the details of a code
func (m *LinkService) Inspect(ctx context.Context, code string) (*domain.LinkStats, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LinkStats), args.Error(1)
}

// Close closes the service
func (m *LinkService) Close() error {
	args := m.Called()
	return args.Error(0)
}
