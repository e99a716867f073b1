package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when no record exists for a short code.
var ErrNotFound = errors.New("url record not found")

// URLRecord is the creation service's view of a short link. This core only
// reads it; records are created, deactivated, and destroyed elsewhere.
type URLRecord struct {
	ShortCode string     `db:"short_code"`
	LongURL   string     `db:"long_url"`
	ExpiryAt  *time.Time `db:"expiry_at"`
	IsActive  bool       `db:"is_active"`
}

// URLStore looks up URL records by their unique short code. Store errors
// are hard failures; retries belong to the connection pool beneath it.
type URLStore interface {
	FindByShortCode(ctx context.Context, shortCode string) (*URLRecord, error)
}

// Compile-time interface check
var _ URLStore = (*PostgresURLStore)(nil)

// PostgresURLStore implements URLStore against the urls table.
type PostgresURLStore struct {
	db *sqlx.DB
}

// NewPostgresURLStore creates a new Postgres-backed store.
func NewPostgresURLStore(db *sqlx.DB) *PostgresURLStore {
	return &PostgresURLStore{db: db}
}

const findByShortCodeQuery = `
SELECT short_code, long_url, expiry_at, is_active
FROM urls
WHERE short_code = $1
LIMIT 1`

// FindByShortCode performs the single unique-key lookup.
func (s *PostgresURLStore) FindByShortCode(ctx context.Context, shortCode string) (*URLRecord, error) {
	const op = "store.PostgresURLStore.FindByShortCode"

	var rec URLRecord
	if err := s.db.GetContext(ctx, &rec, findByShortCodeQuery, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &rec, nil
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
