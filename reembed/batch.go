package reembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// BatchProcessor embeds batches of records and stores their vectors.
type BatchProcessor struct {
	repo     storage.RecordRepository
	embedder ai.Embedder
	retrier  *Retrier
	logger   *slog.Logger
}

// NewBatchProcessor creates a new batch processor. Each embedding call is
// made through retrier.
func NewBatchProcessor(repo storage.RecordRepository, embedder ai.Embedder, retrier *Retrier) *BatchProcessor {
	return &BatchProcessor{
		repo:     repo,
		embedder: embedder,
		retrier:  retrier,
		logger:   slog.Default().With("component", "batch-processor"),
	}
}

// Process embeds records and stores normalized vectors. A vector never
// replaces one written after the record was read, and records deleted in
// the meantime are skipped. Returns how many vectors were written.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = core.EmbeddingText(record)
	}

	var embeddings [][]float32
	err := bp.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(records) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(embeddings))
	}

	written := 0
	for i, record := range records {
		applied, err := bp.repo.UpdateEmbedding(ctx, record.Id, NormalizeVector(embeddings[i]), record.UpdatedAt)
		if errors.Is(err, storage.ErrNotFound) {
			bp.logger.Debug("record deleted during backfill", "record", record.Id)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("failed to update record %s: %w", record.Id, err)
		}
		if !applied {
			bp.logger.Debug("record embedded elsewhere during backfill", "record", record.Id)
			continue
		}
		written++
	}
	return written, nil
}
