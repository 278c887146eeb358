package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/artifact"
	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/logger"
	"github.com/listenupapp/narrator/internal/messenger"
	"github.com/listenupapp/narrator/internal/narration"
	"github.com/listenupapp/narrator/internal/service"
)

// PublisherHandle wraps the event publisher with shutdown capability.
type PublisherHandle struct {
	messenger.Publisher
}

// Shutdown implements do.Shutdownable.
func (h *PublisherHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvidePublisher provides the job event publisher: the SSE stream, plus NATS when configured.
func ProvidePublisher(i do.Injector) (*PublisherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	stream := do.MustInvoke[*EventStreamHandle](i)

	if cfg.NATS.URL == "" {
		log.Info("NATS not configured, narration events stream over SSE only")
		return &PublisherHandle{Publisher: stream.Manager}, nil
	}

	pub, err := messenger.Connect(cfg.NATS.URL, log.Logger)
	if err != nil {
		return nil, err
	}
	log.Info("NATS publisher connected", "url", cfg.NATS.URL)
	return &PublisherHandle{Publisher: messenger.Multi{pub, stream.Manager}}, nil
}

// ProvideUploader provides the MinIO uploader, or a no-op one when no endpoint is configured.
func ProvideUploader(i do.Injector) (artifact.Uploader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Artifacts.Endpoint == "" {
		return artifact.Noop{}, nil
	}

	up, err := artifact.NewMinIO(artifact.Config{
		Endpoint:  cfg.Artifacts.Endpoint,
		AccessKey: cfg.Artifacts.AccessKey,
		SecretKey: cfg.Artifacts.SecretKey,
		Bucket:    cfg.Artifacts.Bucket,
		UseSSL:    cfg.Artifacts.UseSSL,
	}, log.Logger)
	if err != nil {
		return nil, err
	}
	log.Info("artifact uploads enabled", "endpoint", cfg.Artifacts.Endpoint, "bucket", cfg.Artifacts.Bucket)
	return up, nil
}

// NarrationServiceHandle wraps the narration service with shutdown capability.
type NarrationServiceHandle struct {
	*service.NarrationService
}

// Shutdown implements do.Shutdownable.
func (h *NarrationServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideNarrationService provides the narration job service and starts its workers.
func ProvideNarrationService(i do.Injector) (*NarrationServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	pipeline := do.MustInvoke[*narration.Pipeline](i)
	publisher := do.MustInvoke[*PublisherHandle](i)
	uploader := do.MustInvoke[artifact.Uploader](i)

	svc, err := service.NewNarrationService(storeHandle.Store, pipeline, publisher.Publisher, uploader, service.NarrationConfig{
		OutputRoot:      cfg.Narration.OutputPath,
		DefaultNarrator: cfg.Narration.DefaultNarrator,
		WordLimit:       cfg.Narration.WordLimit,
		ChunkRetries:    cfg.Narration.ChunkRetries,
		MaxConcurrent:   cfg.Worker.MaxConcurrent,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	svc.Start()

	return &NarrationServiceHandle{NarrationService: svc}, nil
}
