package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/logger"
	"github.com/narrateapp/narrate-server/internal/sse"
	"github.com/narrateapp/narrate-server/internal/store"
	"github.com/narrateapp/narrate-server/internal/store/remote"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// CacheStoreHandle wraps the local catalog cache with shutdown capability.
type CacheStoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *CacheStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideCacheStore provides the local badger catalog cache.
func ProvideCacheStore(i do.Injector) (*CacheStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := store.Open(cfg.Cache.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Catalog cache initialized", "path", cfg.Cache.Path)

	return &CacheStoreHandle{Store: db}, nil
}

// RemoteStoreHandle wraps the remote catalog store. Store is nil when no
// remote DSN is configured and the server runs cache-only.
type RemoteStoreHandle struct {
	*remote.Store
}

// Shutdown implements do.Shutdownable.
func (h *RemoteStoreHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	return h.Close()
}

// ProvideRemoteStore provides the remote catalog store when configured.
// A missing remote is not an error: the server starts in degraded mode and
// serves the cached catalog.
func ProvideRemoteStore(i do.Injector) (*RemoteStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.RemoteConfigured() {
		log.Warn("No remote store configured - running cache-only")
		return &RemoteStoreHandle{Store: nil}, nil
	}

	rs, err := remote.Open(cfg.Remote.DSN, log.Logger, remote.Options{
		ReadTimeout:  cfg.Remote.ReadTimeout,
		WriteTimeout: cfg.Remote.WriteTimeout,
		Attempts:     cfg.Remote.Attempts,
		Backoff:      cfg.Remote.Backoff,
	})
	if err != nil {
		return nil, err
	}

	log.Info("Remote catalog store connected", "key", cfg.Remote.Key)

	return &RemoteStoreHandle{Store: rs}, nil
}
