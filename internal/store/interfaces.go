package store

import (
	"context"

	"github.com/joshdurbin/shortlinks/internal/domain"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// LinkStore owns every LinkRecord. Records are never removed; expiry is
// decided by callers comparing the clock to ExpiresAt.
type LinkStore interface {
	// Has reports whether a code has ever been inserted
	Has(ctx context.Context, code string) (bool, error)

	// Get returns a snapshot of the record, or domain.ErrNotFound
	Get(ctx context.Context, code string) (*domain.LinkRecord, error)

	// Insert stores the record under record.Code, or fails with
	// domain.ErrAlreadyExists. The existence check and the write are atomic.
	Insert(ctx context.Context, record *domain.LinkRecord) error

	// AppendClick appends event to the code's history, or fails with
	// domain.ErrNotFound
	AppendClick(ctx context.Context, code string, event domain.ClickEvent) error

	// Close releases the store's resources
	Close() error
}
