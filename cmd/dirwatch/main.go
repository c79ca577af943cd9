// Package main provides the entry point for the dirwatch process.
//
// With no listen address, change events for every configured root are
// written to stdout as JSON tuples, one per line. With a listen address the
// same events are served over server-sent events and sessions can be managed
// over HTTP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/dirwatch/internal/di"
	"github.com/listenupapp/dirwatch/internal/logger"
	"github.com/listenupapp/dirwatch/internal/monitor"
)

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start dirwatch: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)
	registry := do.MustInvoke[*monitor.Registry](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	// Stop delivery right away; teardown may take a moment.
	registry.InterruptAll()
	log.Info("Shutting down", "signal", sig.String(), "sessions", registry.Len())

	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Stopped")
}
