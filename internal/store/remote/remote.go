// Package remote provides the typed client for the hosted relational catalog
// store: read-by-key, upsert-by-key, and a connectivity probe. Every call is
// wrapped in a hard timeout and bounded retry with linear backoff.
package remote

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// Options tunes the timeout and retry policy. Zero values fall back to the
// defaults below.
type Options struct {
	// ReadTimeout may be longer than WriteTimeout: catalog reads can be
	// large, while writes are latency-sensitive upserts.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Attempts     int
	Backoff      time.Duration
}

const (
	defaultReadTimeout  = 20 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultAttempts     = 3
	defaultBackoff      = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	return o
}

// ProbeResult reports the outcome of a connectivity probe.
type ProbeResult struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// Store is the remote catalog store client.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	opts   Options
}

// Open connects to the catalog database at the given DSN and ensures the
// schema exists. It configures a small connection pool suited to a
// single-writer workload.
func Open(dsn string, logger *slog.Logger, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{db: db, logger: logger, opts: opts.withDefaults()}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads the catalog stored under key. A missing row is absent, not an
// error: (nil, nil). A present row with a malformed payload is treated as an
// empty catalog so one corrupt write cannot lock every client out.
func (s *Store) Get(ctx context.Context, key string) (*domain.Catalog, error) {
	var raw string
	err := s.withRetry(ctx, s.opts.ReadTimeout, func(callCtx context.Context) error {
		row := s.db.QueryRowContext(callCtx,
			`SELECT catalog_json FROM catalog_rows WHERE key = ?`, key)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Absence is a data outcome, never retried.
				return errors.NotFoundf("no catalog row for key %q", key)
			}
			return errors.Wrap(err, errors.CodeTransientIO, "select catalog row")
		}
		return nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var catalog domain.Catalog
	if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
		if s.logger != nil {
			s.logger.Warn("remote catalog row is malformed, treating as empty",
				"key", key, "error", err)
		}
		return domain.EmptyCatalog(), nil
	}
	catalog.Normalize()
	return &catalog, nil
}

// Put upserts the catalog under key, replacing any existing row. The whole
// catalog is re-serialized on every write so the last successful writer fully
// determines remote state.
func (s *Store) Put(ctx context.Context, key string, catalog *domain.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return errors.Wrap(err, errors.CodeValidation, "marshal catalog")
	}

	return s.withRetry(ctx, s.opts.WriteTimeout, func(callCtx context.Context) error {
		_, err := s.db.ExecContext(callCtx,
			`INSERT INTO catalog_rows (key, catalog_json, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET catalog_json = excluded.catalog_json, updated_at = excluded.updated_at`,
			key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return errors.Wrap(err, errors.CodeTransientIO, "upsert catalog row")
		}
		return nil
	})
}

// Probe checks connectivity with a cheap single-row select and reports
// round-trip latency. Probe failures are reported, not returned as errors.
func (s *Store) Probe(ctx context.Context) ProbeResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
	defer cancel()

	var key string
	err := s.db.QueryRowContext(callCtx, `SELECT key FROM catalog_rows LIMIT 1`).Scan(&key)
	latency := time.Since(start).Milliseconds()

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ProbeResult{Connected: false, Message: err.Error(), LatencyMs: latency}
	}
	return ProbeResult{Connected: true, Message: "ok", LatencyMs: latency}
}
