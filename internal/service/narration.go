package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"github.com/listenupapp/narrator/internal/artifact"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/id"
	"github.com/listenupapp/narrator/internal/messenger"
	"github.com/listenupapp/narrator/internal/narration"
	"github.com/listenupapp/narrator/internal/store"
	"github.com/listenupapp/narrator/internal/timeline"
	"github.com/listenupapp/narrator/internal/validation"
)

const defaultPollInterval = 5 * time.Second

// Narrator runs one narration to completion.
type Narrator interface {
	Narrate(ctx context.Context, req narration.Request) (*narration.Result, error)
}

// NarrationConfig holds the job defaults and worker settings.
type NarrationConfig struct {
	OutputRoot      string
	DefaultNarrator domain.Narrator
	WordLimit       int
	ChunkRetries    int
	MaxConcurrent   int
	PollInterval    time.Duration // Fallback check when a notification is missed
}

// CreateNarrationRequest is the caller input for a new job.
type CreateNarrationRequest struct {
	Title     string `json:"title" validate:"max=200"`
	Text      string `json:"text" validate:"notblank,max=200000"`
	Narrator  string `json:"narrator" validate:"omitempty,narrator"`
	WordLimit int    `json:"word_limit" validate:"omitempty,min=1,max=5000"`
}

// NarrationService queues narration jobs and runs them on a worker pool.
type NarrationService struct {
	store     *store.Store
	narrator  Narrator
	publisher messenger.Publisher
	uploader  artifact.Uploader
	validator *validation.Validator
	config    NarrationConfig
	logger    *slog.Logger

	// Worker management
	ctx       context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	jobNotify chan struct{} // Signal that new jobs are available
}

// NewNarrationService creates a narration service. Nil publisher or uploader disable that step.
func NewNarrationService(
	st *store.Store,
	narrator Narrator,
	publisher messenger.Publisher,
	uploader artifact.Uploader,
	cfg NarrationConfig,
	logger *slog.Logger,
) (*NarrationService, error) {
	if cfg.OutputRoot == "" {
		return nil, errors.InvalidConfiguration("narration output root is required")
	}
	if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
		return nil, errors.IO("create output root", err)
	}
	if publisher == nil {
		publisher = messenger.Noop{}
	}
	if uploader == nil {
		uploader = artifact.Noop{}
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &NarrationService{
		store:     st,
		narrator:  narrator,
		publisher: publisher,
		uploader:  uploader,
		validator: validation.New(),
		config:    cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		jobNotify: make(chan struct{}, 1),
	}, nil
}

// Start recovers interrupted jobs and begins the worker pool.
func (s *NarrationService) Start() {
	s.logger.Info("starting narration workers",
		slog.Int("workers", s.config.MaxConcurrent),
		slog.String("output_root", s.config.OutputRoot),
	)

	s.recoverStalledJobs()

	for i := range s.config.MaxConcurrent {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels running narrations and waits for the workers to exit.
func (s *NarrationService) Stop() {
	s.logger.Info("stopping narration service")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("narration service stopped")
}

// NotifyNewJob signals workers that a new job is available.
func (s *NarrationService) NotifyNewJob() {
	select {
	case s.jobNotify <- struct{}{}:
	default:
		// Already notified
	}
}

// CreateJob validates the request and queues a pending job.
func (s *NarrationService) CreateJob(ctx context.Context, req CreateNarrationRequest) (*domain.NarrationJob, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	narrator := s.config.DefaultNarrator
	if req.Narrator != "" {
		narrator, _ = domain.ParseNarrator(req.Narrator)
	}
	wordLimit := req.WordLimit
	if wordLimit == 0 {
		wordLimit = s.config.WordLimit
	}

	jobID, err := id.Generate(id.PrefixNarration)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate job id")
	}

	job := &domain.NarrationJob{
		ID:        jobID,
		Title:     strings.TrimSpace(req.Title),
		Text:      req.Text,
		Narrator:  narrator,
		WordLimit: wordLimit,
		Status:    domain.NarrationStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateNarrationJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create narration job: %w", err)
	}

	s.logger.Info("narration job queued",
		slog.String("job_id", job.ID),
		slog.String("narrator", string(job.Narrator)),
		slog.Int("chars", len(job.Text)),
	)
	s.NotifyNewJob()
	return job, nil
}

// GetJob returns a job by ID.
func (s *NarrationService) GetJob(ctx context.Context, jobID string) (*domain.NarrationJob, error) {
	return s.store.GetNarrationJob(ctx, jobID)
}

// ListJobs returns the most recent jobs, newest first. An empty status lists all.
func (s *NarrationService) ListJobs(ctx context.Context, status string, limit int) ([]*domain.NarrationJob, error) {
	st := domain.NarrationStatus(status)
	switch st {
	case "", domain.NarrationStatusPending, domain.NarrationStatusRunning,
		domain.NarrationStatusCompleted, domain.NarrationStatusFailed:
	default:
		return nil, errors.ValidationWithDetails("validation failed", map[string]string{
			"status": "must be one of: pending, running, completed, failed",
		})
	}
	return s.store.RecentNarrationJobs(ctx, st, limit)
}

// GetWords returns a completed job's timeline shifted by offsetSec.
func (s *NarrationService) GetWords(ctx context.Context, jobID string, offsetSec float64) ([]domain.Word, error) {
	job, err := s.store.GetNarrationJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.NarrationStatusCompleted {
		return nil, errors.Conflictf("narration %s is %s", job.ID, job.Status)
	}

	words, err := s.store.GetWords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return timeline.Shift(words, offsetSec), nil
}

// Captions renders a completed job's timeline as SRT.
func (s *NarrationService) Captions(ctx context.Context, jobID string) ([]byte, error) {
	words, err := s.GetWords(ctx, jobID, 0)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := timeline.WriteSRT(&buf, words); err != nil {
		return nil, errors.IO("render captions", err)
	}
	return buf.Bytes(), nil
}

// DeleteJob removes a finished job, its timeline, and its output directory.
func (s *NarrationService) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetNarrationJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Finished() {
		return errors.Conflictf("narration %s is %s", job.ID, job.Status)
	}

	if job.OutputDir != "" {
		if err := os.RemoveAll(job.OutputDir); err != nil {
			return errors.IO("remove output dir", err)
		}
	}
	return s.store.DeleteNarrationJob(ctx, jobID)
}

// OutputDir returns the directory a job writes into: <root>/<slug(title)>-<id>.
func (s *NarrationService) OutputDir(job *domain.NarrationJob) string {
	return filepath.Join(s.config.OutputRoot, dirName(job))
}

func dirName(job *domain.NarrationJob) string {
	if name := slug.Make(job.Title); name != "" {
		return name + "-" + job.ID
	}
	return job.ID
}

func baseName(job *domain.NarrationJob) string {
	if name := slug.Make(job.Title); name != "" {
		return name
	}
	return narration.DefaultBaseName
}

// worker processes narration jobs.
func (s *NarrationService) worker(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("narration worker started", slog.Int("worker_id", workerID))

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("narration worker stopping", slog.Int("worker_id", workerID))
			return
		case <-s.jobNotify:
			s.processNextJob(workerID)
		case <-time.After(s.config.PollInterval):
			// Periodic check for jobs (in case notification was missed)
			s.processNextJob(workerID)
		}
	}
}

// processNextJob claims the oldest pending job and runs it.
func (s *NarrationService) processNextJob(workerID int) {
	ctx := s.ctx

	jobs, err := s.store.ListNarrationJobsByStatus(ctx, domain.NarrationStatusPending)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to list pending jobs", slog.Any("error", err))
		}
		return
	}

	var job *domain.NarrationJob
	for _, candidate := range jobs {
		claimed, err := s.store.TransitionNarrationJob(ctx, candidate.ID, domain.NarrationStatusPending, (*domain.NarrationJob).MarkRunning)
		if err != nil {
			// Another worker got it first
			continue
		}
		job = claimed
		break
	}
	if job == nil {
		return
	}

	// More work may be waiting for an idle worker.
	if len(jobs) > 1 {
		s.NotifyNewJob()
	}

	s.logger.Info("starting narration",
		slog.Int("worker_id", workerID),
		slog.String("job_id", job.ID),
		slog.String("narrator", string(job.Narrator)),
	)

	s.runJob(ctx, job)
}

func (s *NarrationService) runJob(ctx context.Context, job *domain.NarrationJob) {
	job.OutputDir = s.OutputDir(job)

	result, err := s.narrator.Narrate(ctx, narration.Request{
		Text:         job.Text,
		Narrator:     job.Narrator,
		WordLimit:    job.WordLimit,
		ChunkRetries: s.config.ChunkRetries,
		OutputDir:    job.OutputDir,
		BaseName:     baseName(job),
	})
	if err != nil {
		if ctx.Err() != nil {
			// Left running; recoverStalledJobs requeues it on the next start.
			s.logger.Warn("narration interrupted by shutdown", slog.String("job_id", job.ID))
			return
		}
		s.handleNarrationError(job, err)
		return
	}

	if err := s.store.SaveWords(ctx, job.ID, result.Words); err != nil {
		// A failed job keeps no outputs.
		if rmErr := os.RemoveAll(job.OutputDir); rmErr != nil {
			s.logger.Warn("failed to remove outputs", slog.String("job_id", job.ID), slog.Any("error", rmErr))
		}
		s.handleNarrationError(job, fmt.Errorf("save words: %w", err))
		return
	}

	urls, err := s.uploader.Upload(ctx, job.ID, []string{result.WAVPath, result.MP3Path, result.WordsPath})
	if err != nil {
		// Local outputs are complete; a failed upload does not fail the job.
		s.logger.Warn("artifact upload failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	job.ArtifactURLs = urls

	job.MarkCompleted(domain.NarrationOutput{
		WAVPath:     result.WAVPath,
		MP3Path:     result.MP3Path,
		DurationSec: result.DurationSec,
		WordCount:   len(result.Words),
		ChunkCount:  result.Chunks,
	})
	if err := s.store.UpdateNarrationJob(ctx, job); err != nil {
		s.logger.Error("failed to update completed job", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	s.logger.Info("narration completed",
		slog.String("job_id", job.ID),
		slog.String("mp3", job.MP3Path),
		slog.Float64("duration_sec", job.DurationSec),
		slog.Int("words", job.WordCount),
	)

	s.publish(job)
}

// handleNarrationError marks a job as failed and publishes the failure.
func (s *NarrationService) handleNarrationError(job *domain.NarrationJob, err error) {
	code := errors.CodeInternal
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}

	s.logger.Error("narration failed",
		slog.String("job_id", job.ID),
		slog.String("code", string(code)),
		slog.Any("error", err),
	)

	job.MarkFailed(string(code), err.Error())
	if updateErr := s.store.UpdateNarrationJob(s.ctx, job); updateErr != nil {
		s.logger.Error("failed to update failed job", slog.Any("error", updateErr))
	}

	s.publish(job)
}

func (s *NarrationService) publish(job *domain.NarrationJob) {
	if err := s.publisher.Publish(s.ctx, job); err != nil {
		s.logger.Warn("failed to publish narration event", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// recoverStalledJobs resets any jobs that were running when the process stopped.
func (s *NarrationService) recoverStalledJobs() {
	ctx := context.Background()

	runningJobs, err := s.store.ListNarrationJobsByStatus(ctx, domain.NarrationStatusRunning)
	if err != nil {
		s.logger.Error("failed to list running jobs for recovery", slog.Any("error", err))
		return
	}

	for _, job := range runningJobs {
		s.logger.Info("recovering stalled narration job", slog.String("job_id", job.ID))

		job.Status = domain.NarrationStatusPending
		job.StartedAt = nil

		if err := s.store.UpdateNarrationJob(ctx, job); err != nil {
			s.logger.Error("failed to reset stalled job", slog.Any("error", err))
		}
	}

	if len(runningJobs) > 0 {
		s.logger.Info("recovered stalled jobs", slog.Int("count", len(runningJobs)))
		s.NotifyNewJob()
	}
}
