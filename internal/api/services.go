package api

import (
	"github.com/listenupapp/narrator/internal/ratelimit"
	"github.com/listenupapp/narrator/internal/service"
	"github.com/listenupapp/narrator/internal/sse"
	"github.com/listenupapp/narrator/internal/store"
)

// Services groups what the API server handlers depend on.
type Services struct {
	Store      *store.Store
	Narrations *service.NarrationService
	Events     *sse.Manager // Optional; nil leaves the event stream unmounted

	// SubmitLimiter throttles narration submissions per client. Nil disables it.
	SubmitLimiter *ratelimit.KeyedRateLimiter
}
