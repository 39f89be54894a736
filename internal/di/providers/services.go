package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/logger"
	"github.com/narrateapp/narrate-server/internal/service"
	"github.com/narrateapp/narrate-server/internal/synthesis"
)

// ProvideSyncService provides the catalog synchronization service.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	cacheHandle := do.MustInvoke[*CacheStoreHandle](i)
	remoteHandle := do.MustInvoke[*RemoteStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	// An interface holding a typed nil is not nil; only assign when the
	// remote actually exists.
	var remoteCatalog service.RemoteCatalog
	if remoteHandle.Store != nil {
		remoteCatalog = remoteHandle.Store
	}

	return service.NewSyncService(remoteCatalog, cacheHandle.Store, cfg.Remote.Key, cfg.Remote.LegacyKey, log.Logger), nil
}

// ProvideLibraryService provides the catalog owner, loaded from the best
// available source at startup.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	syncService := do.MustInvoke[*service.SyncService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	library := service.NewLibraryService(syncService, sseHandle.Manager, log.Logger)
	if err := library.Load(context.Background()); err != nil {
		return nil, err
	}

	return library, nil
}

// GenerationServiceHandle wraps the generation service with Shutdownable so
// in-flight runs are canceled and drained on exit.
type GenerationServiceHandle struct {
	*service.GenerationService
}

// Shutdown implements do.Shutdownable.
func (h *GenerationServiceHandle) Shutdown() error {
	h.GenerationService.Shutdown()
	return nil
}

// ProvideGenerationService provides the narration generation service.
func ProvideGenerationService(i do.Injector) (*GenerationServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	library := do.MustInvoke[*service.LibraryService](i)
	synth := do.MustInvoke[*synthesis.Client](i)
	storageHandle := do.MustInvoke[*ObjectStorageHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	gen := service.NewGenerationService(
		library,
		synth,
		storageHandle.Client,
		sseHandle.Manager,
		cfg.Generation,
		cfg.Storage.FolderName,
		log.Logger,
	)

	return &GenerationServiceHandle{GenerationService: gen}, nil
}

// ProvideRepairService provides the library repair service.
func ProvideRepairService(i do.Injector) (*service.RepairService, error) {
	library := do.MustInvoke[*service.LibraryService](i)
	storageHandle := do.MustInvoke[*ObjectStorageHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewRepairService(library, storageHandle.Client, sseHandle.Manager, log.Logger), nil
}
