package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
)

const (
	narrationPrefix = "narration:"
	indexPrefix     = narrationPrefix + "idx:"
	wordsPrefix     = "words:"
)

func narrationKey(id string) []byte {
	return []byte(narrationPrefix + id)
}

func statusIndexKey(status domain.NarrationStatus, id string) []byte {
	return []byte(indexPrefix + "status:" + string(status) + ":" + id)
}

func wordsKey(id string) []byte {
	return []byte(wordsPrefix + id)
}

// CreateNarrationJob stores a new job.
// Returns ErrAlreadyExists if a job with this ID already exists.
func (s *Store) CreateNarrationJob(ctx context.Context, job *domain.NarrationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal narration job: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := narrationKey(job.ID)

		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		return txn.Set(statusIndexKey(job.Status, job.ID), []byte(job.ID))
	})
}

// GetNarrationJob retrieves a job by ID.
func (s *Store) GetNarrationJob(ctx context.Context, id string) (*domain.NarrationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var job domain.NarrationJob
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, narrationKey(id), &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateNarrationJob replaces an existing job and moves its status index.
func (s *Store) UpdateNarrationJob(ctx context.Context, job *domain.NarrationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal narration job: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var old domain.NarrationJob
		if err := getJSON(txn, narrationKey(job.ID), &old); err != nil {
			return err
		}

		if old.Status != job.Status {
			if err := txn.Delete(statusIndexKey(old.Status, old.ID)); err != nil {
				return fmt.Errorf("delete status index: %w", err)
			}
			if err := txn.Set(statusIndexKey(job.Status, job.ID), []byte(job.ID)); err != nil {
				return fmt.Errorf("set status index: %w", err)
			}
		}
		return txn.Set(narrationKey(job.ID), data)
	})
}

// TransitionNarrationJob applies mutate to the stored job only if its status is still from.
// Returns a conflict error when another worker moved the job first.
func (s *Store) TransitionNarrationJob(ctx context.Context, id string, from domain.NarrationStatus, mutate func(*domain.NarrationJob)) (*domain.NarrationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var job domain.NarrationJob
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, narrationKey(id), &job); err != nil {
			return err
		}
		if job.Status != from {
			return errors.Conflictf("narration %s is %s, not %s", id, job.Status, from)
		}

		mutate(&job)
		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal narration job: %w", err)
		}

		if job.Status != from {
			if err := txn.Delete(statusIndexKey(from, id)); err != nil {
				return fmt.Errorf("delete status index: %w", err)
			}
			if err := txn.Set(statusIndexKey(job.Status, id), []byte(id)); err != nil {
				return fmt.Errorf("set status index: %w", err)
			}
		}
		return txn.Set(narrationKey(id), data)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// DeleteNarrationJob removes a job and its word timeline. Missing jobs are not an error.
func (s *Store) DeleteNarrationJob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var job domain.NarrationJob
		err := getJSON(txn, narrationKey(id), &job)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, key := range [][]byte{statusIndexKey(job.Status, id), wordsKey(id), narrationKey(id)} {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// ListNarrationJobsByStatus returns all jobs with the given status, oldest first.
func (s *Store) ListNarrationJobsByStatus(ctx context.Context, status domain.NarrationStatus) ([]*domain.NarrationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(indexPrefix + "status:" + string(status) + ":")
	var jobs []*domain.NarrationJob

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))

			var job domain.NarrationJob
			err := getJSON(txn, narrationKey(id), &job)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			jobs = append(jobs, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(jobs, func(a, b *domain.NarrationJob) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return jobs, nil
}

// ListNarrationJobs returns an iterator over all jobs in key order.
func (s *Store) ListNarrationJobs(ctx context.Context) iter.Seq2[*domain.NarrationJob, error] {
	return func(yield func(*domain.NarrationJob, error) bool) {
		_ = s.db.View(func(txn *badger.Txn) error {
			prefix := []byte(narrationPrefix)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				if strings.HasPrefix(string(it.Item().Key()), indexPrefix) {
					continue
				}

				var job domain.NarrationJob
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &job)
				}); err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&job, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

// RecentNarrationJobs returns up to limit jobs, newest first, optionally filtered by status.
func (s *Store) RecentNarrationJobs(ctx context.Context, status domain.NarrationStatus, limit int) ([]*domain.NarrationJob, error) {
	var jobs []*domain.NarrationJob
	if status != "" {
		var err error
		if jobs, err = s.ListNarrationJobsByStatus(ctx, status); err != nil {
			return nil, err
		}
	} else {
		for job, err := range s.ListNarrationJobs(ctx) {
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}

	slices.SortFunc(jobs, func(a, b *domain.NarrationJob) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// SaveWords stores the word timeline of a job.
func (s *Store) SaveWords(ctx context.Context, id string, words []domain.Word) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("marshal words: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(wordsKey(id), data)
	})
}

// GetWords returns the word timeline of a job.
func (s *Store) GetWords(ctx context.Context, id string) ([]domain.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var words []domain.Word
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, wordsKey(id), &words)
	})
	if err != nil {
		return nil, err
	}
	return words, nil
}
