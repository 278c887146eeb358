package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/service"
)

// Subdirectories that ingested files are moved into.
const (
	QueuedDir   = "queued"
	RejectedDir = "rejected"
)

// JobCreator queues a narration job.
type JobCreator interface {
	CreateJob(ctx context.Context, req service.CreateNarrationRequest) (*domain.NarrationJob, error)
}

// Inbox queues a narration for every settled text file dropped into dir.
// Queued files move to dir/queued, unusable ones to dir/rejected.
type Inbox struct {
	dir     string
	creator JobCreator
	opts    Options
	logger  *slog.Logger
}

// NewInbox creates the inbox and its subdirectories.
func NewInbox(dir string, creator JobCreator, opts Options, logger *slog.Logger) (*Inbox, error) {
	for _, d := range []string{dir, filepath.Join(dir, QueuedDir), filepath.Join(dir, RejectedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
	}
	opts.setDefaults()

	return &Inbox{
		dir:     filepath.Clean(dir),
		creator: creator,
		opts:    opts,
		logger:  logger.With("component", "inbox"),
	}, nil
}

// Run ingests files already in the inbox, then watches for new ones until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	w, err := New(in.logger, in.opts)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Watch(in.dir); err != nil {
		return err
	}
	go func() { _ = w.Start(ctx) }()

	in.logger.Info("watching inbox", slog.String("dir", in.dir))
	in.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			in.ingestLogged(ctx, ev.Path)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watch error", slog.Any("error", err))
		}
	}
}

// scan ingests files that arrived while nothing was watching.
func (in *Inbox) scan(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Error("failed to read inbox", slog.Any("error", err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !in.opts.accepts(e.Name()) {
			continue
		}
		in.ingestLogged(ctx, filepath.Join(in.dir, e.Name()))
	}
}

func (in *Inbox) ingestLogged(ctx context.Context, path string) {
	job, err := in.Ingest(ctx, path)
	switch {
	case job == nil:
		in.logger.Warn("inbox file rejected", slog.String("path", path), slog.Any("error", err))
	case err != nil:
		in.logger.Warn("inbox file queued but not moved", slog.String("job_id", job.ID), slog.Any("error", err))
	default:
		in.logger.Info("inbox file queued", slog.String("path", path), slog.String("job_id", job.ID))
	}
}

// Ingest queues a job for the file at path, titled after the file name, and moves the file.
func (in *Inbox) Ingest(ctx context.Context, path string) (*domain.NarrationJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inbox file: %w", err)
	}

	base := filepath.Base(path)
	job, err := in.creator.CreateJob(ctx, service.CreateNarrationRequest{
		Title: Title(base),
		Text:  string(data),
	})
	if err != nil {
		if moveErr := os.Rename(path, filepath.Join(in.dir, RejectedDir, base)); moveErr != nil {
			in.logger.Error("failed to move rejected file", slog.String("path", path), slog.Any("error", moveErr))
		}
		return nil, err
	}

	if err := os.Rename(path, filepath.Join(in.dir, QueuedDir, job.ID+"-"+base)); err != nil {
		return job, fmt.Errorf("move queued file: %w", err)
	}
	return job, nil
}

// Title derives a job title from a file name: "my_first-story.txt" becomes "my first story".
func Title(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
