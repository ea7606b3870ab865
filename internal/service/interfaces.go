package service

import (
	"context"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// LinkService defines the short link lifecycle operations
type LinkService interface {
	// Create validates the parameters and stores a new link
	Create(ctx context.Context, params domain.CreateLinkParams) (*domain.CreatedLink, error)

	// Resolve returns the target URL of an active code and records a click
	Resolve(ctx context.Context, code, clientAddr, referrer string) (string, error)

	// Inspect returns the code's details and click history without recording a click
	Inspect(ctx context.Context, code string) (*domain.LinkStats, error)

	// Close closes the service and its dependencies
	Close() error
}
