package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a retrier is given no attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrInvalidRetryDelay is returned for a negative retry delay.
	ErrInvalidRetryDelay = errors.New("retry delay must not be negative")

	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrEnqueuerRequired is returned when queue mode has no job enqueuer.
	ErrEnqueuerRequired = errors.New("enqueuer required")

	// ErrEmbedderRequired is returned when direct mode has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")
)
