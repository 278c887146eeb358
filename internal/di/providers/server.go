package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/api"
	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/logger"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	svcHandle := do.MustInvoke[*NarrationServiceHandle](i)
	stream := do.MustInvoke[*EventStreamHandle](i)

	handler := api.NewServer(api.Services{
		Store:      storeHandle.Store,
		Narrations: svcHandle.NarrationService,
		Events:     stream.Manager,

		SubmitLimiter: api.NewSubmitLimiter(cfg.Server.SubmitRate),
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Open event streams would otherwise hold Shutdown until its timeout.
	srv.RegisterOnShutdown(func() {
		if err := stream.Shutdown(); err != nil {
			log.Warn("event stream shutdown", "error", err)
		}
	})

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
