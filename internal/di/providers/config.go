// Package providers contains dependency injection providers for the watcher process.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/dirwatch/internal/config"
	"github.com/listenupapp/dirwatch/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting dirwatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"roots", cfg.Watch.Roots,
		"backend", cfg.Watch.Backend,
		"listen", cfg.Server.Listen,
	)

	return log, nil
}
