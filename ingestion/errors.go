package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("invalid option")

	// ErrRecordGone indicates the job's record was deleted before it ran.
	ErrRecordGone = errors.New("record no longer exists")

	// ErrJobExhausted indicates a job failed on every allowed attempt.
	ErrJobExhausted = errors.New("retry limit reached")

	// ErrUnknownJobType indicates no handler is registered for a job type.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrPipelineRunning is returned by Start when the pipeline is already running.
	ErrPipelineRunning = errors.New("pipeline already running")
)
