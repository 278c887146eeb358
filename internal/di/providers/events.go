package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/logger"
	"github.com/listenupapp/narrator/internal/sse"
)

// EventStreamHandle wraps the SSE manager with shutdown capability.
type EventStreamHandle struct {
	*sse.Manager
}

// Shutdown implements do.Shutdownable.
func (h *EventStreamHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideEventStream provides the SSE manager and starts its broadcast loop.
func ProvideEventStream(i do.Injector) (*EventStreamHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)
	go manager.Start(context.Background())

	return &EventStreamHandle{Manager: manager}, nil
}
