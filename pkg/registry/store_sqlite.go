package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists grants in SQLite. The schema is migrated on open.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and migrates it.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grant database: %w", err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing database handle and migrates it.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		recipient TEXT,
		title TEXT NOT NULL,
		metadata JSON,
		revision INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, g *Grant) error {
	query := `
		INSERT INTO grants (id, owner, chain_id, recipient, title, metadata, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		g.ID, g.Owner, g.ChainID, g.Recipient, g.Title, string(g.Metadata),
		g.Revision, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Grant, error) {
	query := `
		SELECT id, owner, chain_id, recipient, title, metadata, revision, created_at, updated_at
		FROM grants
		WHERE id = ?
	`
	return s.queryOne(ctx, query, id)
}

func (s *SQLiteStore) Update(ctx context.Context, g *Grant) error {
	query := `
		UPDATE grants
		SET recipient = ?, title = ?, metadata = ?, revision = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		g.Recipient, g.Title, string(g.Metadata), g.Revision, g.UpdatedAt.UTC(), g.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, g.ID)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Grant, error) {
	query := `
		SELECT id, owner, chain_id, recipient, title, metadata, revision, created_at, updated_at
		FROM grants
		ORDER BY created_at DESC, id
		LIMIT ?
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var grants []*Grant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM grants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*Grant, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	g, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrGrantNotFound)
	}
	return g, err
}

func scanGrant(scan func(...any) error) (*Grant, error) {
	var g Grant
	var metadata string
	var createdAt, updatedAt time.Time
	if err := scan(&g.ID, &g.Owner, &g.ChainID, &g.Recipient, &g.Title, &metadata,
		&g.Revision, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if metadata != "" {
		g.Metadata = []byte(metadata)
	}
	g.CreatedAt = createdAt.UTC()
	g.UpdatedAt = updatedAt.UTC()
	return &g, nil
}
