package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/store"
)

// MemoryPath keeps the database in memory for the lifetime of the process
const MemoryPath = ":memory:"

// Store implements store.LinkStore using SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at databasePath and applies migrations.
// The pool is limited to one connection: SQLite serializes writers anyway,
// and an in-memory database only lives as long as its connection.
func New(databasePath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if databasePath != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Store{
		db:     db,
		logger: logger.With("component", "sqlite_store"),
	}

	if err := s.migrateSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Has reports whether a code exists
func (s *Store) Has(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM links WHERE code = ?)", code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// Get retrieves the record and its clicks in a single read transaction
func (s *Store) Get(ctx context.Context, code string) (*domain.LinkRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record := &domain.LinkRecord{Code: code}
	err = tx.QueryRowContext(ctx,
		"SELECT target_url, created_at, expires_at FROM links WHERE code = ?", code).
		Scan(&record.TargetURL, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT clicked_at, referrer, country, region, city
		FROM clicks WHERE code = ? ORDER BY id`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks: %w", err)
	}
	defer rows.Close()

	record.Clicks = []domain.ClickEvent{}
	for rows.Next() {
		var (
			event                           domain.ClickEvent
			referrer, country, region, city sql.NullString
		)
		if err := rows.Scan(&event.Timestamp, &referrer, &country, &region, &city); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		event.Referrer = fromNullString(referrer)
		event.Geo = domain.Geo{
			Country: fromNullString(country),
			Region:  fromNullString(region),
			City:    fromNullString(city),
		}
		record.Clicks = append(record.Clicks, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clicks: %w", err)
	}

	return record, nil
}

// Insert stores a record; the primary key makes check-then-insert atomic
func (s *Store) Insert(ctx context.Context, record *domain.LinkRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO links (code, target_url, created_at, expires_at) VALUES (?, ?, ?, ?)",
		record.Code, record.TargetURL, record.CreatedAt.UTC(), record.ExpiresAt.UTC())
	if err != nil {
		if isConstraintViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// AppendClick appends a click; the autoincrement id preserves completion order
func (s *Store) AppendClick(ctx context.Context, code string, event domain.ClickEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM links WHERE code = ?)", code).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check code: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO clicks (code, clicked_at, referrer, country, region, city)
		VALUES (?, ?, ?, ?, ?, ?)`,
		code, event.Timestamp.UTC(),
		toNullString(event.Referrer),
		toNullString(event.Geo.Country),
		toNullString(event.Geo.Region),
		toNullString(event.Geo.City),
	); err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return tx.Commit()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Ensure Store implements the interface
var _ store.LinkStore = (*Store)(nil)
