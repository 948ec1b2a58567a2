package storage

import (
	"context"
	"time"

	"github.com/poiesic/yellowbook/core"
)

// RecordRepository stores directory records and owns their vectors.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	// AddRecord stores a new record built from fields.
	// Assigns a UUID and sets CreatedAt/UpdatedAt.
	AddRecord(ctx context.Context, fields core.RecordFields) (*core.Record, error)

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.RecordID) (*core.Record, error)

	// ListRecords returns records in creation order. A non-empty cityFilter
	// keeps records whose city contains it, case-insensitively.
	ListRecords(ctx context.Context, cityFilter string) ([]*core.Record, error)

	// ListRecordsWithoutVector returns records not yet embedded, in creation order.
	ListRecordsWithoutVector(ctx context.Context) ([]*core.Record, error)

	// UpdateRecord replaces a record's content, clears its vector and
	// bumps UpdatedAt. Returns ErrNotFound if the record doesn't exist.
	UpdateRecord(ctx context.Context, id core.RecordID, fields core.RecordFields) (*core.Record, error)

	// UpdateEmbedding stores vector only if the record has no vector or was
	// last modified at or before notModifiedAfter. Reports whether the write
	// was applied. Returns ErrNotFound if the record doesn't exist.
	UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector, notModifiedAfter time.Time) (bool, error)

	// DeleteRecord removes a record.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteRecord(ctx context.Context, id core.RecordID) error

	// Close releases resources held by the repository.
	Close() error
}

// JobRepository is a persistent at-least-once job queue with per-key
// deduplication. At most one pending (enqueued, processing or retrying)
// job exists per dedup key.
type JobRepository interface {
	// Enqueue stores job unless a pending job holds the same dedup key. In
	// that case the pending job absorbs the newer text and enqueue time and
	// is returned with enqueued=false.
	Enqueue(ctx context.Context, job *core.EmbeddingJob) (stored *core.EmbeddingJob, enqueued bool, err error)

	// ClaimDue moves up to limit runnable jobs of jobType whose NextRunAt is
	// not after now into the processing state and returns them.
	ClaimDue(ctx context.Context, jobType core.JobType, now time.Time, limit int) ([]*core.EmbeddingJob, error)

	// CompleteJob finishes a processing job and releases its dedup key. If
	// the job was refreshed by Enqueue while processing, it is put back in
	// the queue instead and requeued is true.
	CompleteJob(ctx context.Context, job *core.EmbeddingJob) (requeued bool, err error)

	// RetryJob stores job in the retrying state with its Attempt,
	// NextRunAt and LastError as set by the caller.
	RetryJob(ctx context.Context, job *core.EmbeddingJob) error

	// DeadLetterJob parks job permanently and releases its dedup key.
	DeadLetterJob(ctx context.Context, job *core.EmbeddingJob) error

	// GetJob retrieves a job by ID. Returns ErrNotFound if it doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.EmbeddingJob, error)

	// ListJobs returns jobs in the given state ordered by NextRunAt.
	ListJobs(ctx context.Context, state core.JobState) ([]*core.EmbeddingJob, error)

	// ReplayJob moves a dead-lettered job back to the queue with a fresh
	// attempt counter. Returns ErrInvalidJobState if it is not dead-lettered
	// and ErrDuplicateJob if another job now holds its dedup key.
	ReplayJob(ctx context.Context, id core.ID, now time.Time) (*core.EmbeddingJob, error)

	// RecoverProcessing returns jobs left in the processing state by a
	// crashed worker to the queue. Reports how many were recovered.
	RecoverProcessing(ctx context.Context, now time.Time) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository persists progress markers for long-running processors.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for its processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes a processor's checkpoint.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
