// Package postgres mirrors extracted records into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// DefaultTable receives mirrored records when no table is configured.
const DefaultTable = "listing_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for record rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// EnsureSchema creates the table on connect when it is missing.
	EnsureSchema bool
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore upserts one row per listing id. The CSV file stays the source
// of truth; this table is a queryable copy.
type RecordStore struct {
	pool  execCloser
	table string
	now   func() time.Time
}

// NewRecordStore connects a pool using cfg.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &RecordStore{pool: pool, table: table, now: time.Now}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewRecordStoreWithPool wraps an existing pool, mainly for tests.
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: name, now: time.Now}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the record table if it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	listing_id         TEXT PRIMARY KEY,
	run_id             TEXT NOT NULL,
	url                TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	brand              TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	price_eur          INTEGER,
	km                 INTEGER,
	kw                 INTEGER,
	cv                 INTEGER,
	fuel               TEXT NOT NULL DEFAULT '',
	dealer_rating      DOUBLE PRECISION,
	first_registration TEXT NOT NULL DEFAULT '',
	year               INTEGER,
	blocked            BOOLEAN NOT NULL DEFAULT FALSE,
	skipped            BOOLEAN NOT NULL DEFAULT FALSE,
	skip_reason        TEXT NOT NULL DEFAULT '',
	observed_at        TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name identifies the mirror in logs.
func (s *RecordStore) Name() string {
	return "postgres"
}

// Mirror upserts rec keyed by its listing id.
func (s *RecordStore) Mirror(ctx context.Context, runID string, rec listing.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	id := rec.ID()
	if id == "" {
		return fmt.Errorf("record %q has no listing id", rec.URL)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	listing_id,
	run_id,
	url,
	title,
	brand,
	model,
	price_eur,
	km,
	kw,
	cv,
	fuel,
	dealer_rating,
	first_registration,
	year,
	blocked,
	skipped,
	skip_reason,
	observed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
ON CONFLICT (listing_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	brand = EXCLUDED.brand,
	model = EXCLUDED.model,
	price_eur = EXCLUDED.price_eur,
	km = EXCLUDED.km,
	kw = EXCLUDED.kw,
	cv = EXCLUDED.cv,
	fuel = EXCLUDED.fuel,
	dealer_rating = EXCLUDED.dealer_rating,
	first_registration = EXCLUDED.first_registration,
	year = EXCLUDED.year,
	blocked = EXCLUDED.blocked,
	skipped = EXCLUDED.skipped,
	skip_reason = EXCLUDED.skip_reason,
	observed_at = EXCLUDED.observed_at`, s.table)

	args := []any{
		id,
		runID,
		rec.URL,
		rec.Title,
		rec.Brand,
		rec.Model,
		rec.PriceEUR,
		rec.KM,
		rec.KW,
		rec.CV,
		rec.Fuel,
		rec.DealerRating,
		rec.FirstRegistration,
		rec.Year,
		rec.Blocked,
		rec.Skipped,
		rec.SkipReason,
		s.now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %s: %w", id, err)
	}
	return nil
}
