package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Each job is stored under its ID, indexed by (state, type, NextRunAt) for
// claiming, and, while pending, referenced from its dedup key.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is closed by its owner.
func (r *JobRepository) Close() error {
	return nil
}

// Enqueue stores a new job or coalesces it into the pending job for its dedup key.
func (r *JobRepository) Enqueue(ctx context.Context, job *core.EmbeddingJob) (*core.EmbeddingJob, bool, error) {
	var stored *core.EmbeddingJob
	var enqueued bool

	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		stored, enqueued = nil, false

		existing, err := r.pendingForKey(tx, job.DedupKey)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = existing
			if !job.EnqueuedAt.After(existing.EnqueuedAt) {
				return nil
			}
			// Absorb the newer content. A runnable job simply picks it up;
			// a processing job is requeued when it completes.
			updated := existing.Clone()
			updated.Text = job.Text
			updated.EnqueuedAt = job.EnqueuedAt
			if existing.State == core.JobStateRetrying {
				// New content gets a full set of attempts, starting now.
				updated.Attempt = 1
				updated.NextRunAt = job.EnqueuedAt
				updated.LastError = ""
			}
			updated.UpdatedAt = now()
			stored = updated
			return r.writeJob(tx, existing, updated)
		}

		fresh := job.Clone()
		fresh.State = core.JobStateEnqueued
		if fresh.Attempt < 1 {
			fresh.Attempt = 1
		}
		if fresh.NextRunAt.IsZero() {
			fresh.NextRunAt = fresh.EnqueuedAt
		}
		fresh.UpdatedAt = now()
		// Job IDs derive from key and enqueue time, so a finished job may
		// share this ID. The new job supersedes it.
		prev, err := r.readJob(tx, fresh.Id)
		if err != nil {
			return err
		}
		if err := r.writeJob(tx, prev, fresh); err != nil {
			return err
		}
		stored, enqueued = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored.Clone(), enqueued, nil
}

// ClaimDue atomically moves due jobs into the processing state.
func (r *JobRepository) ClaimDue(ctx context.Context, jobType core.JobType, now time.Time, limit int) ([]*core.EmbeddingJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*core.EmbeddingJob
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		claimed = claimed[:0]

		var due []core.ID
		for _, state := range []core.JobState{core.JobStateEnqueued, core.JobStateRetrying} {
			ids, err := r.dueIDs(tx, state, jobType, now, limit-len(due))
			if err != nil {
				return err
			}
			due = append(due, ids...)
			if len(due) >= limit {
				break
			}
		}

		for _, id := range due {
			job, err := r.readJob(tx, id)
			if err != nil {
				return err
			}
			if job == nil {
				continue
			}
			updated := job.Clone()
			updated.State = core.JobStateProcessing
			updated.UpdatedAt = now
			if err := r.writeJob(tx, job, updated); err != nil {
				return err
			}
			claimed = append(claimed, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob marks a processing job completed, or requeues it if newer
// content arrived while it ran.
func (r *JobRepository) CompleteJob(ctx context.Context, job *core.EmbeddingJob) (bool, error) {
	requeued := false
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		requeued = false
		stored, err := r.readProcessing(tx, job.Id)
		if err != nil {
			return err
		}

		updated := stored.Clone()
		updated.UpdatedAt = now()
		updated.LastError = ""
		if stored.EnqueuedAt.After(job.EnqueuedAt) {
			// The finished run may have written a vector for the old text.
			// Re-enqueueing after that write lets the next run replace it.
			updated.State = core.JobStateEnqueued
			updated.Attempt = 1
			updated.EnqueuedAt = updated.UpdatedAt
			updated.NextRunAt = updated.UpdatedAt
			requeued = true
		} else {
			updated.State = core.JobStateCompleted
			updated.Attempt = job.Attempt
		}
		return r.writeJob(tx, stored, updated)
	})
	return requeued, err
}

// RetryJob schedules a processing job for another attempt.
func (r *JobRepository) RetryJob(ctx context.Context, job *core.EmbeddingJob) error {
	return r.backend.WithUpdate(func(tx *badger.Txn) error {
		stored, err := r.readProcessing(tx, job.Id)
		if err != nil {
			return err
		}

		updated := job.Clone()
		updated.State = core.JobStateRetrying
		updated.UpdatedAt = now()
		// Keep content refreshed by a concurrent Enqueue.
		if stored.EnqueuedAt.After(job.EnqueuedAt) {
			updated.Text = stored.Text
			updated.EnqueuedAt = stored.EnqueuedAt
		}
		return r.writeJob(tx, stored, updated)
	})
}

// DeadLetterJob parks a processing job and releases its dedup key.
func (r *JobRepository) DeadLetterJob(ctx context.Context, job *core.EmbeddingJob) error {
	return r.backend.WithUpdate(func(tx *badger.Txn) error {
		stored, err := r.readProcessing(tx, job.Id)
		if err != nil {
			return err
		}

		updated := job.Clone()
		updated.State = core.JobStateDeadLettered
		updated.UpdatedAt = now()
		return r.writeJob(tx, stored, updated)
	})
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id core.ID) (*core.EmbeddingJob, error) {
	var job *core.EmbeddingJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = r.readJob(tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return job, err
}

// ListJobs returns all jobs in a state ordered by NextRunAt.
func (r *JobRepository) ListJobs(ctx context.Context, state core.JobState) ([]*core.EmbeddingJob, error) {
	var jobs []*core.EmbeddingJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = append([]byte(jobStatePrefix), byte(state))
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			_, id, ok := parseJobStateKey(iter.Item().Key())
			if !ok {
				continue
			}
			job, err := r.readJob(tx, id)
			if err != nil {
				return err
			}
			if job != nil {
				jobs = append(jobs, job)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReplayJob returns a dead-lettered job to the queue.
func (r *JobRepository) ReplayJob(ctx context.Context, id core.ID, now time.Time) (*core.EmbeddingJob, error) {
	var replayed *core.EmbeddingJob
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		stored, err := r.readJob(tx, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return storage.ErrNotFound
		}
		if stored.State != core.JobStateDeadLettered {
			return fmt.Errorf("%w: job %d is %s", storage.ErrInvalidJobState, id, stored.State)
		}
		holder, err := r.pendingForKey(tx, stored.DedupKey)
		if err != nil {
			return err
		}
		if holder != nil {
			return fmt.Errorf("%w: %s held by job %d", storage.ErrDuplicateJob, stored.DedupKey, holder.Id)
		}

		updated := stored.Clone()
		updated.State = core.JobStateEnqueued
		updated.Attempt = 1
		updated.EnqueuedAt = now
		updated.NextRunAt = now
		updated.LastError = ""
		updated.UpdatedAt = now
		replayed = updated
		return r.writeJob(tx, stored, updated)
	})
	if err != nil {
		return nil, err
	}
	return replayed, nil
}

// RecoverProcessing requeues jobs abandoned in the processing state.
func (r *JobRepository) RecoverProcessing(ctx context.Context, now time.Time) (int, error) {
	recovered := 0
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		recovered = 0

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = append([]byte(jobStatePrefix), byte(core.JobStateProcessing))
		iter := tx.NewIterator(opts)
		var ids []core.ID
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if _, id, ok := parseJobStateKey(iter.Item().Key()); ok {
				ids = append(ids, id)
			}
		}
		iter.Close()

		for _, id := range ids {
			job, err := r.readJob(tx, id)
			if err != nil {
				return err
			}
			if job == nil {
				continue
			}
			updated := job.Clone()
			updated.State = core.JobStateEnqueued
			updated.NextRunAt = now
			updated.UpdatedAt = now
			if err := r.writeJob(tx, job, updated); err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	return recovered, err
}

// dueIDs returns up to limit IDs from one state index whose run time is not after now.
func (r *JobRepository) dueIDs(tx *badger.Txn, state core.JobState, jobType core.JobType, now time.Time, limit int) ([]core.ID, error) {
	if limit <= 0 {
		return nil, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makePartialJobStateKey(state, jobType)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid() && len(ids) < limit; iter.Next() {
		runAt, id, ok := parseJobStateKey(iter.Item().Key())
		if !ok {
			continue
		}
		// Keys are ordered by run time, so nothing later is due either.
		if runAt.After(now) {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// writeJob stores next and moves its index entries away from prev.
// prev is nil for new jobs.
func (r *JobRepository) writeJob(tx *badger.Txn, prev, next *core.EmbeddingJob) error {
	if prev != nil {
		if err := tx.Delete(makeJobStateKey(prev)); err != nil {
			return err
		}
	}
	if err := tx.Set(makeJobKey(next.Id), storage.MarshalJob(next)); err != nil {
		return err
	}
	if err := tx.Set(makeJobStateKey(next), nil); err != nil {
		return err
	}

	dedupKey := makeJobDedupKey(next.DedupKey)
	if next.State.Pending() {
		return tx.Set(dedupKey, storage.MarshalJobID(next.Id))
	}
	// Only release the key if this job still holds it.
	holder, err := r.dedupHolder(tx, next.DedupKey)
	if err != nil {
		return err
	}
	if holder == next.Id {
		return tx.Delete(dedupKey)
	}
	return nil
}

// pendingForKey returns the pending job holding dedupKey, or nil.
func (r *JobRepository) pendingForKey(tx *badger.Txn, dedupKey string) (*core.EmbeddingJob, error) {
	id, err := r.dedupHolder(tx, dedupKey)
	if err != nil || id == 0 {
		return nil, err
	}
	job, err := r.readJob(tx, id)
	if err != nil {
		return nil, err
	}
	if job == nil || !job.State.Pending() {
		r.backend.logger.Warn("dedup key points at non-pending job", "key", dedupKey, "job", id)
		return nil, nil
	}
	return job, nil
}

// dedupHolder returns the ID of the job holding dedupKey, or 0.
func (r *JobRepository) dedupHolder(tx *badger.Txn, dedupKey string) (core.ID, error) {
	item, err := tx.Get(makeJobDedupKey(dedupKey))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalJobID(val)
		return unmarshalErr
	})
	return id, err
}

// readProcessing loads a job that must currently be processing.
func (r *JobRepository) readProcessing(tx *badger.Txn, id core.ID) (*core.EmbeddingJob, error) {
	job, err := r.readJob(tx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, storage.ErrNotFound
	}
	if job.State != core.JobStateProcessing {
		return nil, fmt.Errorf("%w: job %d is %s", storage.ErrInvalidJobState, id, job.State)
	}
	return job, nil
}

// readJob loads a job inside tx. Returns nil, nil if it doesn't exist.
func (r *JobRepository) readJob(tx *badger.Txn, id core.ID) (*core.EmbeddingJob, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.EmbeddingJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
