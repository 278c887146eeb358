// Package narration runs the narration pipeline: chunk the text, synthesize each chunk
// through a provider, stitch the audio, align the words, and export the result.
package narration

import (
	"context"
	"log/slog"

	"github.com/listenupapp/narrator/internal/capture"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/intercept"
	"github.com/listenupapp/narrator/internal/ratelimit"
	"github.com/listenupapp/narrator/internal/speechify"
)

// Session synthesizes chunks for one narrator. Chunks must be sent one at a time, in order.
type Session interface {
	Synthesize(ctx context.Context, chunk domain.TextChunk) (*speechify.Payload, error)
	Close() error
}

// Provider opens synthesis sessions.
type Provider interface {
	Open(ctx context.Context, narrator domain.Narrator) (Session, error)
}

// BrowserProvider synthesizes by driving the speechify web page in a headless browser.
type BrowserProvider struct {
	cfg         capture.Config
	limiter     *ratelimit.KeyedRateLimiter
	interceptor *intercept.Interceptor
	logger      *slog.Logger
}

// NewBrowserProvider creates a provider. limiter spaces synthesis starts per TTS host and
// may be shared by every worker.
func NewBrowserProvider(cfg capture.Config, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *BrowserProvider {
	return &BrowserProvider{
		cfg:         cfg,
		limiter:     limiter,
		interceptor: intercept.New(logger),
		logger:      logger,
	}
}

// Open launches a browser session for narrator.
func (p *BrowserProvider) Open(ctx context.Context, narrator domain.Narrator) (Session, error) {
	voice, err := speechify.VoiceFor(narrator)
	if err != nil {
		return nil, err
	}
	s, err := capture.Open(ctx, p.cfg, voice, p.logger)
	if err != nil {
		return nil, err
	}
	return &browserSession{session: s, provider: p}, nil
}

// page is the part of capture.Session a browser session drives.
type page interface {
	intercept.Source
	Synthesize(ctx context.Context, chunk domain.TextChunk) error
	Reset(ctx context.Context) error
	Close() error
}

type browserSession struct {
	session  page
	provider *BrowserProvider
}

func (b *browserSession) Synthesize(ctx context.Context, chunk domain.TextChunk) (*speechify.Payload, error) {
	if err := b.provider.limiter.Wait(ctx, speechify.SynthesisHost); err != nil {
		return nil, err
	}
	if err := b.session.Synthesize(ctx, chunk); err != nil {
		return nil, err
	}

	body, extractErr := b.provider.interceptor.Extract(ctx, b.session)
	// Reset even when nothing was captured so the chunk can be sent again.
	// A failed reset closes the page, so its error wins over a missed response
	// and the chunk is not retried.
	if err := b.session.Reset(ctx); err != nil {
		if extractErr != nil {
			b.provider.logger.Warn("reset failed after missed synthesis response",
				slog.Int("chunk", chunk.Index),
				slog.String("response_error", extractErr.Error()),
			)
		}
		return nil, err
	}
	if extractErr != nil {
		return nil, extractErr
	}

	payload, err := speechify.ParsePayload(body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeDecode, "chunk %d response", chunk.Index)
	}
	return payload, nil
}

func (b *browserSession) Close() error {
	return b.session.Close()
}
