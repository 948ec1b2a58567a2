package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// embeddingHandler computes a record's vector and stores it if the record
// has not changed since the job was enqueued.
type embeddingHandler struct {
	records  storage.RecordRepository
	embedder ai.Embedder
	logger   *slog.Logger
}

var _ handler = (*embeddingHandler)(nil)

func newEmbeddingHandler(records storage.RecordRepository, embedder ai.Embedder, logger *slog.Logger) *embeddingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingHandler{
		records:  records,
		embedder: embedder,
		logger:   logger.With("handler", core.JobTypeGenerateEmbedding.String()),
	}
}

func (h *embeddingHandler) handle(ctx context.Context, job *core.EmbeddingJob) Outcome {
	logger := h.logger.With("job", job.Id, "record", job.RecordId, "attempt", job.Attempt)

	record, err := h.records.GetRecord(ctx, job.RecordId)
	if errors.Is(err, storage.ErrNotFound) {
		return failed(job, fmt.Errorf("%w: %s", ErrRecordGone, job.RecordId))
	}
	if err != nil {
		logger.Error("error loading record", "err", err)
		return failed(job, err)
	}

	// A newer job already embedded newer content.
	if record.HasVector() && record.UpdatedAt.After(job.EnqueuedAt) {
		logger.Debug("record already embedded")
		return succeeded(job, true)
	}

	vector, err := h.embedder.EmbedText(ctx, job.Text)
	if err != nil {
		logger.Warn("error generating embedding", "err", err)
		return failed(job, err)
	}

	applied, err := h.records.UpdateEmbedding(ctx, job.RecordId, vector, job.EnqueuedAt)
	if errors.Is(err, storage.ErrNotFound) {
		return failed(job, fmt.Errorf("%w: %s", ErrRecordGone, job.RecordId))
	}
	if err != nil {
		logger.Error("error storing embedding", "err", err)
		return failed(job, err)
	}
	if !applied {
		logger.Debug("record changed since enqueue, vector discarded")
		return succeeded(job, true)
	}
	return succeeded(job, false)
}
