// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// CheckpointName identifies the backfill's checkpoint.
const CheckpointName = "backfill"

// Config holds configuration for a backfill.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call in direct mode
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff in direct mode
	RetryDelay time.Duration

	// Direct embeds records in process instead of enqueueing jobs
	Direct bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Enqueuer queues an embedding job for a record. *ingestion.Pipeline
// implements it.
type Enqueuer interface {
	EnqueueRecord(ctx context.Context, record *core.Record) (*core.EmbeddingJob, bool, error)
}

// Summary counts what a backfill did.
type Summary struct {
	Pending   int // records without a vector when the run began
	Enqueued  int // new jobs
	Coalesced int // records that already had a pending job
	Embedded  int // vectors written in direct mode
	Resumed   bool
}

// Backfiller gets vectors computed for records that lack one.
type Backfiller struct {
	records     storage.RecordRepository
	checkpoints storage.CheckpointRepository
	enqueuer    Enqueuer
	processor   *BatchProcessor
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// NewBackfiller creates a backfiller. Queue mode needs enqueuer, direct
// mode needs embedder; the other may be nil. checkpoints may be nil to
// disable resuming.
// progress: where to write progress output (typically os.Stderr)
func NewBackfiller(
	records storage.RecordRepository,
	checkpoints storage.CheckpointRepository,
	enqueuer Enqueuer,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) (*Backfiller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if config.Direct && embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if !config.Direct && enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}
	if progress == nil {
		progress = io.Discard
	}

	b := &Backfiller{
		records:     records,
		checkpoints: checkpoints,
		enqueuer:    enqueuer,
		config:      config,
		progress:    progress,
		logger:      slog.Default().With("component", "backfill"),
	}
	if config.Direct {
		retrier, err := NewRetrier(config.MaxRetries, config.RetryDelay)
		if err != nil {
			return nil, err
		}
		b.processor = NewBatchProcessor(records, embedder, retrier)
	}
	return b, nil
}

// Run processes every record without a vector. It resumes after the last
// checkpointed record, saves a checkpoint after each batch and removes it
// once all records are handled.
func (b *Backfiller) Run(ctx context.Context) (*Summary, error) {
	checkpoint, err := b.loadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}

	iterator := NewRecordIterator(b.records, b.config.BatchSize)
	summary := &Summary{}
	processed := 0
	if checkpoint != nil {
		iterator.ResumeAfter(checkpoint.LastId)
		summary.Resumed = true
		processed = checkpoint.Processed
		b.logger.Info("resuming backfill", "after", checkpoint.LastId, "processed", processed)
	}

	pending, err := iterator.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		fmt.Fprintf(b.progress, "No records need embedding\n")
		return summary, b.clearCheckpoint(ctx)
	}

	mode, label := "queue", "Enqueued"
	if b.config.Direct {
		mode, label = "direct", "Embedded"
	}
	fmt.Fprintf(b.progress, "Starting %s backfill of %d records (batch size: %d)\n",
		mode, len(pending), iterator.batchSize)

	tracker := NewProgressTracker(b.progress, label, len(pending), b.config.ReportInterval)
	tracker.Start()

	err = forEachBatch(ctx, pending, iterator.batchSize, func(batch []*core.Record) error {
		if err := b.processBatch(ctx, batch, summary); err != nil {
			return err
		}
		tracker.Increment(len(batch))
		processed += len(batch)
		return b.saveCheckpoint(ctx, batch[len(batch)-1].Id, processed)
	})
	if err != nil {
		return summary, err
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(b.progress, "Backfill complete. Processed %d records in %v (%.1f records/sec)\n",
		len(pending), elapsed.Round(time.Millisecond), float64(len(pending))/max(elapsed.Seconds(), 1e-9))

	return summary, b.clearCheckpoint(ctx)
}

func (b *Backfiller) processBatch(ctx context.Context, batch []*core.Record, summary *Summary) error {
	if b.config.Direct {
		written, err := b.processor.Process(ctx, batch)
		summary.Embedded += written
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	}

	for _, record := range batch {
		_, enqueued, err := b.enqueuer.EnqueueRecord(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to enqueue record %s: %w", record.Id, err)
		}
		if enqueued {
			summary.Enqueued++
		} else {
			summary.Coalesced++
		}
	}
	return nil
}

func (b *Backfiller) loadCheckpoint(ctx context.Context) (*core.Checkpoint, error) {
	if b.checkpoints == nil {
		return nil, nil
	}
	return b.checkpoints.LoadCheckpoint(ctx, CheckpointName)
}

func (b *Backfiller) saveCheckpoint(ctx context.Context, lastID core.RecordID, processed int) error {
	if b.checkpoints == nil {
		return nil
	}
	return b.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: CheckpointName,
		LastId:        lastID,
		Processed:     processed,
	})
}

func (b *Backfiller) clearCheckpoint(ctx context.Context) error {
	if b.checkpoints == nil {
		return nil
	}
	return b.checkpoints.DeleteCheckpoint(ctx, CheckpointName)
}
