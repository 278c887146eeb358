package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/logger"
	"github.com/listenupapp/narrator/internal/service"
	"github.com/listenupapp/narrator/internal/watcher"
)

// InboxHandle wraps the inbox watcher with shutdown capability.
type InboxHandle struct {
	*watcher.Inbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *InboxHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideInbox provides the inbox watcher. It is inert when no inbox dir is configured.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	svcHandle := do.MustInvoke[*NarrationServiceHandle](i)

	if cfg.Inbox.Dir == "" {
		log.Info("inbox not configured, watcher disabled")
		return &InboxHandle{}, nil
	}

	inbox, err := watcher.NewInbox(cfg.Inbox.Dir, svcHandle.NarrationService, watcher.Options{}, log.Logger)
	if err != nil {
		return nil, err
	}

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := inbox.Run(ctx); err != nil {
			log.Error("inbox watcher error", "error", err)
		}
	}()

	return &InboxHandle{Inbox: inbox, cancel: cancel, done: done}, nil
}

// RetentionJobHandle wraps the retention job with shutdown capability.
type RetentionJobHandle struct {
	*service.RetentionJob
}

// Shutdown implements do.Shutdownable.
func (h *RetentionJobHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRetentionJob provides the periodic cleanup of old narrations.
func ProvideRetentionJob(i do.Injector) (*RetentionJobHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	svcHandle := do.MustInvoke[*NarrationServiceHandle](i)

	job := service.NewRetentionJob(svcHandle.NarrationService, cfg.Retention.MaxAge, log.Logger)
	if err := job.Start(); err != nil {
		return nil, err
	}
	return &RetentionJobHandle{RetentionJob: job}, nil
}
