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

package yellowbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/ai/langchain"
	"github.com/poiesic/yellowbook/ai/openai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/ingestion"
	"github.com/poiesic/yellowbook/reembed"
	"github.com/poiesic/yellowbook/search"
	"github.com/poiesic/yellowbook/storage"
	"github.com/poiesic/yellowbook/storage/badger"
	"github.com/poiesic/yellowbook/storage/postgres"
)

// Directory is the business directory: its stores, AI provider, searcher
// and embedding pipeline, wired together.
type Directory struct {
	backend     *badger.Backend
	records     storage.RecordRepository
	jobs        storage.JobRepository
	checkpoints storage.CheckpointRepository
	provider    ai.AIProvider
	searcher    *search.Searcher
	pipeline    *ingestion.Pipeline
	logger      *slog.Logger
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*directoryOptions)

type directoryOptions struct {
	aiConfig     *ai.Config
	provider     ai.AIProvider
	postgresURL  string
	inMemory     bool
	logger       *slog.Logger
	searchOpts   []search.Option
	pipelineOpts []ingestion.Option
}

// WithAIConfig sets the provider configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) DirectoryOption {
	return func(o *directoryOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses an existing provider instead of building one from the
// AI config. The Directory takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DirectoryOption {
	return func(o *directoryOptions) {
		o.provider = provider
	}
}

// WithPostgres stores records in PostgreSQL instead of BadgerDB. Jobs and
// checkpoints stay in BadgerDB.
func WithPostgres(connString string) DirectoryOption {
	return func(o *directoryOptions) {
		o.postgresURL = connString
	}
}

// WithInMemory keeps BadgerDB data in memory. The path is ignored.
func WithInMemory() DirectoryOption {
	return func(o *directoryOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DirectoryOption {
	return func(o *directoryOptions) {
		o.logger = logger
	}
}

// WithSearchOptions passes options to the searcher.
func WithSearchOptions(opts ...search.Option) DirectoryOption {
	return func(o *directoryOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}

// WithPipelineOptions passes options to the embedding pipeline.
func WithPipelineOptions(opts ...ingestion.Option) DirectoryOption {
	return func(o *directoryOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// NewProvider builds the AI provider selected by config.Backend.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case ai.BackendOpenAI:
		return openai.NewProvider(config)
	default:
		return langchain.NewProvider(config)
	}
}

// NewDirectory opens the directory stored at filePath.
func NewDirectory(ctx context.Context, filePath string, opts ...DirectoryOption) (*Directory, error) {
	// Apply options
	options := &directoryOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.aiConfig == nil {
		options.aiConfig = ai.DefaultConfig()
	}
	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}
	dimension := options.aiConfig.Dimension

	d := &Directory{logger: options.logger.With("component", "directory")}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	d.backend = backend
	d.jobs = badger.NewJobRepository(backend)
	d.checkpoints = badger.NewCheckpointRepository(backend)

	if options.postgresURL != "" {
		records, err := postgres.Open(ctx, options.postgresURL, dimension, postgres.WithLogger(options.logger))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.records = records
	} else {
		d.records = badger.NewRecordRepository(backend, dimension)
	}

	d.provider = options.provider
	if d.provider == nil {
		d.provider, err = NewProvider(options.aiConfig)
		if err != nil {
			d.Close()
			return nil, err
		}
	}

	searchOpts := append([]search.Option{search.WithLogger(options.logger)}, options.searchOpts...)
	d.searcher, err = search.NewSearcher(d.records, d.provider, searchOpts...)
	if err != nil {
		d.Close()
		return nil, err
	}

	pipelineOpts := append([]ingestion.Option{ingestion.WithLogger(options.logger)}, options.pipelineOpts...)
	d.pipeline, err = ingestion.NewPipeline(d.records, d.jobs, d.provider.Embedder(), pipelineOpts...)
	if err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// CreateRecord validates and stores a new business and queues it for
// embedding. A failure to enqueue is logged, not returned; the backfill
// picks such records up later.
func (d *Directory) CreateRecord(ctx context.Context, fields core.RecordFields) (*core.Record, error) {
	record, err := d.records.AddRecord(ctx, fields)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, record)
	return record, nil
}

// UpdateRecord replaces a business's content, which clears its vector,
// and queues it for embedding.
func (d *Directory) UpdateRecord(ctx context.Context, id core.RecordID, fields core.RecordFields) (*core.Record, error) {
	record, err := d.records.UpdateRecord(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, record)
	return record, nil
}

// DeleteRecord removes a business. A pending embedding job for it will be
// dead-lettered when it runs.
func (d *Directory) DeleteRecord(ctx context.Context, id core.RecordID) error {
	return d.records.DeleteRecord(ctx, id)
}

func (d *Directory) enqueue(ctx context.Context, record *core.Record) {
	if _, _, err := d.pipeline.EnqueueRecord(ctx, record); err != nil {
		d.logger.Error("error enqueueing embedding job", "record", record.Id, "err", err)
	}
}

// Search answers a question about the directory, optionally within a city.
func (d *Directory) Search(ctx context.Context, question, city string) (*core.SearchResult, error) {
	return d.searcher.Search(ctx, question, city)
}

// NewBackfiller creates a backfill over this directory's records. Queue
// mode feeds the directory's pipeline; direct mode uses its embedder.
func (d *Directory) NewBackfiller(config *reembed.Config, progress io.Writer) (*reembed.Backfiller, error) {
	return reembed.NewBackfiller(d.records, d.checkpoints, d.pipeline, d.provider.Embedder(), config, progress)
}

// ReplayJob returns a dead-lettered job to the queue.
func (d *Directory) ReplayJob(ctx context.Context, id core.ID) (*core.EmbeddingJob, error) {
	job, err := d.pipeline.Replay(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replay job %d: %w", id, err)
	}
	return job, nil
}

func (d *Directory) Pipeline() *ingestion.Pipeline {
	return d.pipeline
}

func (d *Directory) Searcher() *search.Searcher {
	return d.searcher
}

func (d *Directory) Records() storage.RecordRepository {
	return d.records
}

func (d *Directory) Jobs() storage.JobRepository {
	return d.jobs
}

func (d *Directory) Checkpoints() storage.CheckpointRepository {
	return d.checkpoints
}

func (d *Directory) Provider() ai.AIProvider {
	return d.provider
}

// Close stops the pipeline and releases every resource. It is safe to
// call on a partially constructed Directory.
func (d *Directory) Close() error {
	var errs []error

	if d.pipeline != nil {
		d.pipeline.Release()
	}
	if d.provider != nil {
		if err := d.provider.Close(); err != nil {
			d.logger.Error("error closing AI provider", "err", err)
		}
	}
	if d.records != nil {
		if err := d.records.Close(); err != nil {
			d.logger.Error("error closing record repository", "err", err)
			errs = append(errs, err)
		}
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			d.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
