// Package providers contains dependency injection providers for the narrator binaries.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File:        logger.FileConfig{Path: cfg.Logger.File},
	})

	log.Debug("logger ready",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"log_file", cfg.Logger.File,
	)

	return log, nil
}
