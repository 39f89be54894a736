package service

import (
	"context"
	"log/slog"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/store"
	"github.com/narrateapp/narrate-server/internal/store/remote"
)

// RemoteCatalog is the remote store surface SyncService depends on.
type RemoteCatalog interface {
	Get(ctx context.Context, key string) (*domain.Catalog, error)
	Put(ctx context.Context, key string, catalog *domain.Catalog) error
	Probe(ctx context.Context) remote.ProbeResult
}

// CatalogSource identifies where a loaded catalog came from.
type CatalogSource string

const (
	// SourceRemote means the catalog was read from the remote store's current key.
	SourceRemote CatalogSource = "remote"
	// SourceLegacy means the catalog was found under the legacy key and migrated.
	SourceLegacy CatalogSource = "legacy"
	// SourceCache means the catalog came from the local cache, either because
	// no remote is configured or because the remote was unreachable.
	SourceCache CatalogSource = "cache"
	// SourceEmpty means no catalog existed anywhere.
	SourceEmpty CatalogSource = "empty"
)

// LoadResult is the outcome of LoadCatalog.
type LoadResult struct {
	Catalog *domain.Catalog
	Source  CatalogSource
	// Warning records a degraded-mode condition that did not prevent loading.
	Warning string
}

// SyncService moves the catalog between the remote store and the local cache.
// The remote store is authoritative when reachable; the cache keeps the app
// usable when it is not. Writes are last-writer-wins.
type SyncService struct {
	remote    RemoteCatalog // nil when no remote is configured
	cache     *store.Store
	logger    *slog.Logger
	key       string
	legacyKey string
}

// NewSyncService creates a new sync service. remote may be nil, in which case
// all loads and saves go through the cache only.
func NewSyncService(remote RemoteCatalog, cache *store.Store, key, legacyKey string, logger *slog.Logger) *SyncService {
	return &SyncService{
		remote:    remote,
		cache:     cache,
		logger:    logger,
		key:       key,
		legacyKey: legacyKey,
	}
}

// RemoteConfigured reports whether a remote store is attached.
func (s *SyncService) RemoteConfigured() bool {
	return s.remote != nil
}

// LoadCatalog resolves the current catalog.
//
// With a remote configured it reads the current key, falling back to the
// legacy key and migrating any catalog found there forward. A remote failure
// degrades to the cached copy rather than surfacing an error. Without a
// remote the cache is the only source.
func (s *SyncService) LoadCatalog(ctx context.Context) (*LoadResult, error) {
	if s.remote == nil {
		catalog, err := s.cache.Get()
		if err != nil {
			return nil, err
		}
		catalog.Normalize()
		source := SourceCache
		if catalog.IsEmpty() {
			source = SourceEmpty
		}
		return &LoadResult{Catalog: catalog, Source: source}, nil
	}

	catalog, err := s.remote.Get(ctx, s.key)
	if err != nil {
		return s.fallbackToCache(err)
	}
	// Only a non-empty catalog settles the load. An empty row under the
	// current key (including a corrupt row read back as empty) must still
	// fall through to the legacy key, or one bad write would hide intact
	// pre-migration data forever.
	if catalog != nil && !catalog.IsEmpty() {
		catalog.Normalize()
		s.refreshCache(catalog)
		return &LoadResult{Catalog: catalog, Source: SourceRemote}, nil
	}

	// Nothing under the current key; check the legacy key and migrate.
	legacy, err := s.remote.Get(ctx, s.legacyKey)
	if err != nil {
		return s.fallbackToCache(err)
	}
	if legacy != nil && !legacy.IsEmpty() {
		legacy.Normalize()
		s.logger.Info("migrating catalog from legacy key",
			slog.String("from", s.legacyKey),
			slog.String("to", s.key))
		if err := s.remote.Put(ctx, s.key, legacy); err != nil {
			// The data is intact under the legacy key, so serve it and let a
			// later save complete the migration.
			s.logger.Warn("legacy catalog migration write failed",
				slog.String("error", err.Error()))
		}
		s.refreshCache(legacy)
		return &LoadResult{Catalog: legacy, Source: SourceLegacy}, nil
	}

	// An empty library is a valid state for a fresh install.
	return &LoadResult{Catalog: domain.EmptyCatalog(), Source: SourceEmpty}, nil
}

// SaveCatalog persists the catalog, cache first so local state is never lost,
// then remote. A remote write failure is logged and swallowed; the next save
// retries it implicitly.
func (s *SyncService) SaveCatalog(ctx context.Context, catalog *domain.Catalog) error {
	catalog.Normalize()

	if err := s.cache.Put(catalog); err != nil {
		return err
	}

	if s.remote == nil {
		return nil
	}

	if err := s.remote.Put(ctx, s.key, catalog); err != nil {
		s.logger.Warn("remote catalog write failed, cached copy retained",
			slog.String("key", s.key),
			slog.String("error", err.Error()))
	}
	return nil
}

// Probe checks remote connectivity.
func (s *SyncService) Probe(ctx context.Context) remote.ProbeResult {
	if s.remote == nil {
		return remote.ProbeResult{Connected: false, Message: "remote store not configured"}
	}
	return s.remote.Probe(ctx)
}

// fallbackToCache serves the cached catalog after a remote failure.
func (s *SyncService) fallbackToCache(cause error) (*LoadResult, error) {
	s.logger.Warn("remote catalog read failed, falling back to cache",
		slog.String("error", cause.Error()))

	catalog, err := s.cache.Get()
	if err != nil {
		return nil, err
	}
	catalog.Normalize()
	return &LoadResult{
		Catalog: catalog,
		Source:  SourceCache,
		Warning: "remote unreachable: " + cause.Error(),
	}, nil
}

// refreshCache mirrors a remotely loaded catalog into the cache so it is
// available next time the remote is down. Failures are non-fatal.
func (s *SyncService) refreshCache(catalog *domain.Catalog) {
	if err := s.cache.Put(catalog); err != nil {
		s.logger.Warn("cache refresh failed", slog.String("error", err.Error()))
	}
}
