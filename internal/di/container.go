// Package di provides dependency injection configuration for the Narrate server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/di/providers"
	"github.com/narrateapp/narrate-server/internal/logger"
	"github.com/narrateapp/narrate-server/internal/service"
	"github.com/narrateapp/narrate-server/internal/synthesis"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Persistence layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideCacheStore)
	do.Provide(injector, providers.ProvideRemoteStore)

	// Outbound clients
	do.Provide(injector, providers.ProvideSynthesizer)
	do.Provide(injector, providers.ProvideObjectStorage)

	// Business services
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideGenerationService)
	do.Provide(injector, providers.ProvideRepairService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.CacheStoreHandle](injector)
	_ = do.MustInvoke[*providers.RemoteStoreHandle](injector)
	_ = do.MustInvoke[*synthesis.Client](injector)
	_ = do.MustInvoke[*providers.ObjectStorageHandle](injector)
	_ = do.MustInvoke[*service.SyncService](injector)
	_ = do.MustInvoke[*service.LibraryService](injector)
	_ = do.MustInvoke[*providers.GenerationServiceHandle](injector)
	_ = do.MustInvoke[*service.RepairService](injector)

	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
