package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/listenupapp/narrator/internal/domain"
)

// RetentionJob periodically deletes finished narrations older than MaxAge.
type RetentionJob struct {
	service   *NarrationService
	maxAge    time.Duration
	scheduler *gocron.Scheduler
	logger    *slog.Logger
}

// NewRetentionJob creates a retention job. A zero maxAge disables it.
func NewRetentionJob(svc *NarrationService, maxAge time.Duration, logger *slog.Logger) *RetentionJob {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	return &RetentionJob{
		service:   svc,
		maxAge:    maxAge,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start schedules an hourly sweep, the first one immediately.
func (r *RetentionJob) Start() error {
	if r.maxAge <= 0 {
		r.logger.Info("narration retention disabled")
		return nil
	}

	_, err := r.scheduler.Every(1).Hour().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.Sweep(ctx, time.Now())
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	r.logger.Info("narration retention started", slog.Duration("max_age", r.maxAge))
	return nil
}

// Stop stops the scheduler.
func (r *RetentionJob) Stop() {
	if r.scheduler.IsRunning() {
		r.scheduler.Stop()
	}
}

// Sweep deletes finished jobs that completed before now-maxAge and returns how many it removed.
func (r *RetentionJob) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-r.maxAge)
	removed := 0

	for _, status := range []domain.NarrationStatus{domain.NarrationStatusCompleted, domain.NarrationStatusFailed} {
		jobs, err := r.service.store.ListNarrationJobsByStatus(ctx, status)
		if err != nil {
			r.logger.Error("retention: list jobs failed", slog.String("status", string(status)), slog.Any("error", err))
			continue
		}

		for _, job := range jobs {
			if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
				continue
			}
			if err := r.service.DeleteJob(ctx, job.ID); err != nil {
				r.logger.Warn("retention: delete failed", slog.String("job_id", job.ID), slog.Any("error", err))
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("retention sweep removed narrations", slog.Int("count", removed))
	}
	return removed
}
