// Package messenger publishes narration job lifecycle events.
package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/listenupapp/narrator/internal/domain"
)

// Subject prefixes. The job ID is appended: narration.completed.<id>.
const (
	SubjectCompleted = "narration.completed"
	SubjectFailed    = "narration.failed"
)

// Publisher announces finished narration jobs.
type Publisher interface {
	Publish(ctx context.Context, job *domain.NarrationJob) error
	Close()
}

// Event is the JSON body published for a finished job.
type Event struct {
	JobID        string                 `json:"job_id"`
	Status       domain.NarrationStatus `json:"status"`
	Title        string                 `json:"title,omitempty"`
	DurationSec  float64                `json:"duration_sec,omitempty"`
	WordCount    int                    `json:"word_count,omitempty"`
	ArtifactURLs []string               `json:"artifact_urls,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	Timestamp    int64                  `json:"timestamp"`
}

// NewEvent builds the event for a finished job.
func NewEvent(job *domain.NarrationJob) Event {
	return Event{
		JobID:        job.ID,
		Status:       job.Status,
		Title:        job.Title,
		DurationSec:  job.DurationSec,
		WordCount:    job.WordCount,
		ArtifactURLs: job.ArtifactURLs,
		Error:        job.Error,
		ErrorCode:    job.ErrorCode,
		Timestamp:    time.Now().Unix(),
	}
}

// Subject returns the subject a job is published on, or "" for unfinished jobs.
func Subject(job *domain.NarrationJob) string {
	switch job.Status {
	case domain.NarrationStatusCompleted:
		return SubjectCompleted + "." + job.ID
	case domain.NarrationStatusFailed:
		return SubjectFailed + "." + job.ID
	default:
		return ""
	}
}

// conn is the slice of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events over a core NATS connection.
type NATSPublisher struct {
	nc     conn
	logger *slog.Logger
}

// Connect dials url and returns a publisher on that connection.
func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("narrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, logger), nil
}

func newNATSPublisher(nc conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, logger: logger.With("component", "nats_publisher")}
}

// Publish sends the job's event. Unfinished jobs are ignored.
func (p *NATSPublisher) Publish(ctx context.Context, job *domain.NarrationJob) error {
	subject := Subject(job)
	if subject == "" {
		return nil
	}

	data, err := json.Marshal(NewEvent(job))
	if err != nil {
		return fmt.Errorf("failed to marshal narration event: %w", err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish narration event: %w", err)
	}

	p.logger.DebugContext(ctx, "narration event sent",
		slog.String("subject", subject),
		slog.String("job_id", job.ID),
	)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("NATS drain failed", slog.Any("error", err))
	}
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, *domain.NarrationJob) error { return nil }

// Close implements Publisher.
func (Noop) Close() {}

// Multi sends every event to each publisher in turn.
type Multi []Publisher

// Publish implements Publisher. Every publisher is tried; their errors are joined.
func (m Multi) Publish(ctx context.Context, job *domain.NarrationJob) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() {
	for _, p := range m {
		p.Close()
	}
}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Noop{}
	_ Publisher = Multi(nil)
)
