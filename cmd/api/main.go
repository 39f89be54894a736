// Package main provides the entry point for the Narrate server application.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/narrateapp/narrate-server/internal/di"
	"github.com/narrateapp/narrate-server/internal/di/providers"
	"github.com/narrateapp/narrate-server/internal/logger"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// Shutdown all services in reverse order
	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	// The cache and remote store use wrapper handles; close them explicitly
	// in case the container skipped them.
	if cacheHandle, err := do.Invoke[*providers.CacheStoreHandle](injector); err == nil {
		if err := cacheHandle.Shutdown(); err != nil {
			log.Error("Failed to close catalog cache", "error", err)
		}
	}
	if remoteHandle, err := do.Invoke[*providers.RemoteStoreHandle](injector); err == nil {
		if err := remoteHandle.Shutdown(); err != nil {
			log.Error("Failed to close remote store", "error", err)
		}
	}

	log.Info("Goodbye")
}
