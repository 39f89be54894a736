// Package store provides durable on-device persistence for the catalog,
// used as a fallback and mirror of the remote catalog store.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/narrateapp/narrate-server/internal/domain"
)

// rootKey is the single well-known key holding the serialized catalog. The
// catalog is written atomically as one blob so a partial write can never
// corrupt half the library.
var rootKey = []byte("catalog:root")

// Store wraps a Badger database holding the local catalog mirror.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the local cache at the given path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // Disable Badger's internal logging
	opts.SyncWrites = true // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("local cache opened", "path", path)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads the cached catalog. A missing or malformed blob yields an empty
// catalog rather than an error: the cache is best-effort by design and a
// corrupt local copy must not lock the operator out of the library.
func (s *Store) Get() (*domain.Catalog, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rootKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.EmptyCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached catalog: %w", err)
	}

	var catalog domain.Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		if s.logger != nil {
			s.logger.Warn("cached catalog is malformed, treating as empty", "error", err)
		}
		return domain.EmptyCatalog(), nil
	}
	catalog.Normalize()
	return &catalog, nil
}

// Put replaces the cached catalog with the given one.
func (s *Store) Put(catalog *domain.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rootKey, data)
	})
	if err != nil {
		return fmt.Errorf("write cached catalog: %w", err)
	}
	return nil
}

// Clear removes the cached catalog. Clearing an empty store is a no-op, not
// an error; the call is used for cache resets and legacy-store teardown.
func (s *Store) Clear() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(rootKey)
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("clear cached catalog: %w", err)
	}
	return nil
}
