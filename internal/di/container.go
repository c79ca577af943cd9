// Package di provides dependency injection configuration for the watcher process.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/dirwatch/internal/config"
	"github.com/listenupapp/dirwatch/internal/di/providers"
	"github.com/listenupapp/dirwatch/internal/logger"
	"github.com/listenupapp/dirwatch/internal/monitor"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()
	do.Provide(injector, providers.ProvideConfig)
	registerProviders(injector)
	return injector
}

// registerProviders registers everything except the configuration, which
// tests supply as a value.
func registerProviders(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideLogger)

	// Delivery
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideEventStream)

	// Sessions
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideRootSessions)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// With no listen address events stream to stdout and no HTTP server starts.
func Bootstrap(injector do.Injector) error {
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*monitor.Registry](injector)

	if cfg.Server.Listen != "" {
		_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
		if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
			return err
		}
	}

	if _, err := do.Invoke[*providers.RootSessionsHandle](injector); err != nil {
		return err
	}

	return nil
}
