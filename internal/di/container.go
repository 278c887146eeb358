// Package di provides dependency injection configuration for the narrator binaries.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/di/providers"
	"github.com/listenupapp/narrator/internal/logger"
	"github.com/listenupapp/narrator/internal/narration"
)

// NewContainer creates and configures the DI container with all providers.
// Services are built lazily, so a binary only pays for what it invokes.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Narration pipeline
	do.Provide(injector, providers.ProvidePipeline)

	// Job service
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideEventStream)
	do.Provide(injector, providers.ProvidePublisher)
	do.Provide(injector, providers.ProvideUploader)
	do.Provide(injector, providers.ProvideNarrationService)

	// Workers
	do.Provide(injector, providers.ProvideInbox)
	do.Provide(injector, providers.ProvideRetentionJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes every service the API server needs.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*narration.Pipeline](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.NarrationServiceHandle](injector); err != nil {
		return err
	}

	// Workers
	if _, err := do.Invoke[*providers.InboxHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RetentionJobHandle](injector); err != nil {
		return err
	}

	// Server
	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}
