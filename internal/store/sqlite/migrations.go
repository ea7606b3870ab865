package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable records the applied schema version
const migrationsTable = "schema_migrations"

// migrateSchema brings the links and clicks tables up to the latest version
// and checks the constraints the store relies on. The migrate instance is not
// closed: its driver would close s.db with it.
func (s *Store) migrateSchema(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	s.logger.Debug("schema migrated", "version", version)

	return s.verifySchema(ctx)
}

// verifySchema checks that clicks reference links and that links reject an
// expiry at or before creation
func (s *Store) verifySchema(ctx context.Context) error {
	var linksSQL string
	err := s.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'links'").Scan(&linksSQL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.New("links table missing")
		}
		return fmt.Errorf("failed to read links schema: %w", err)
	}
	if !strings.Contains(linksSQL, "CHECK (expires_at > created_at)") {
		return errors.New("links table lacks the expiry check")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT \"table\", \"from\" FROM pragma_foreign_key_list('clicks')")
	if err != nil {
		return fmt.Errorf("failed to read clicks foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, from string
		if err := rows.Scan(&table, &from); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		if table == "links" && from == "code" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate foreign keys: %w", err)
	}
	return errors.New("clicks table does not reference links(code)")
}
