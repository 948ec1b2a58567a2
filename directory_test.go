package yellowbook

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/ai/mock"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/ingestion"
	"github.com/poiesic/yellowbook/reembed"
	"github.com/poiesic/yellowbook/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func newTestDirectory(t *testing.T, opts ...DirectoryOption) (*Directory, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithServices(
		mock.NewMockEmbedder().WithDimension(testDim),
		mock.NewMockCompleter(),
	)
	opts = append([]DirectoryOption{
		WithInMemory(),
		WithAIConfig(ai.NewConfig(ai.WithDimension(testDim))),
		WithProvider(provider),
	}, opts...)
	d, err := NewDirectory(context.Background(), "", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, provider
}

func pizzeria(city string) core.RecordFields {
	return core.RecordFields{
		Name:        "Roma Pizza",
		Description: "Wood-fired pizza by the slice",
		Categories:  []string{"Restaurant", "Pizza"},
		Address:     core.Address{Street: "12 Main St", City: city, State: "OR"},
		Contact:     core.Contact{Phone: "555-0100"},
	}
}

func TestNewDirectory(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "yellowbook")
		d, err := NewDirectory(context.Background(), dir,
			WithAIConfig(ai.NewConfig(ai.WithDimension(testDim))),
			WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		assert.NotNil(t, d.Records())
		assert.NotNil(t, d.Jobs())
		assert.NotNil(t, d.Checkpoints())
		assert.NotNil(t, d.Searcher())
		assert.NotNil(t, d.Pipeline())
		assert.NoError(t, d.Close())
	})

	t.Run("invalid ai config", func(t *testing.T) {
		_, err := NewDirectory(context.Background(), "", WithInMemory(),
			WithAIConfig(ai.NewConfig(ai.WithDimension(0))))
		assert.Error(t, err)
	})

	t.Run("invalid pipeline option", func(t *testing.T) {
		provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockCompleter())
		_, err := NewDirectory(context.Background(), "", WithInMemory(),
			WithProvider(provider),
			WithPipelineOptions(ingestion.WithConcurrency(0)))
		assert.ErrorIs(t, err, ingestion.ErrInvalidOption)
		assert.True(t, provider.Closed(), "provider is released on failure")
	})
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  *ai.Config
		wantErr bool
	}{
		{"langchain", ai.NewConfig(), false},
		{"ollama", ai.NewConfig(ai.WithBackend(ai.BackendOllama), ai.WithHost("http://localhost:11434")), false},
		{"openai", ai.NewConfig(ai.WithBackend(ai.BackendOpenAI), ai.WithAPIKey("sk-test")), false},
		{"openai without key", ai.NewConfig(ai.WithBackend(ai.BackendOpenAI)), true},
		{"unknown backend", ai.NewConfig(ai.WithBackend("carrier-pigeon")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewProvider() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() unexpected error: %v", err)
			}
			if p.Embedder() == nil || p.Completer() == nil {
				t.Errorf("NewProvider() returned provider without services")
			}
			p.Close()
		})
	}
}

func TestDirectory_CreateRecordQueuesEmbedding(t *testing.T) {
	d, provider := newTestDirectory(t)
	ctx := context.Background()

	rec, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)
	assert.False(t, rec.HasVector())

	queued, err := d.Jobs().ListJobs(ctx, core.JobStateEnqueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, rec.Id, queued[0].RecordId)

	outcomes, err := d.Pipeline().ProcessOnce(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, core.JobStateCompleted, outcomes[0].State)

	stored, err := d.Records().GetRecord(ctx, rec.Id)
	require.NoError(t, err)
	assert.True(t, stored.HasVector())
	assert.Len(t, stored.Vector, testDim)
	assert.Equal(t, 1, provider.GetMockEmbedder().CallCount())
}

func TestDirectory_CreateRecordRejectsInvalidFields(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := d.CreateRecord(ctx, core.RecordFields{Name: "  "})
	assert.ErrorIs(t, err, core.ErrValidation)

	queued, err := d.Jobs().ListJobs(ctx, core.JobStateEnqueued)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

type failingJobs struct {
	storage.JobRepository
}

func (failingJobs) Enqueue(ctx context.Context, job *core.EmbeddingJob) (*core.EmbeddingJob, bool, error) {
	return nil, false, errors.New("queue unavailable")
}

func TestDirectory_EnqueueFailureDoesNotFailCreate(t *testing.T) {
	d, provider := newTestDirectory(t)
	ctx := context.Background()

	pipeline, err := ingestion.NewPipeline(d.records, failingJobs{d.jobs}, provider.Embedder())
	require.NoError(t, err)
	d.pipeline.Release()
	d.pipeline = pipeline

	rec, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)

	_, err = d.Records().GetRecord(ctx, rec.Id)
	assert.NoError(t, err, "record is stored even though it was not queued")
}

func TestDirectory_UpdateRecordRequeues(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	rec, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)
	_, err = d.Pipeline().ProcessOnce(ctx)
	require.NoError(t, err)

	fields := pizzeria("Salem")
	fields.Description = "Neapolitan pizza and gelato"
	updated, err := d.UpdateRecord(ctx, rec.Id, fields)
	require.NoError(t, err)
	assert.False(t, updated.HasVector(), "editing content clears the vector")

	queued, err := d.Jobs().ListJobs(ctx, core.JobStateEnqueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Contains(t, queued[0].Text, "gelato")
}

func TestDirectory_DeleteRecord(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	rec, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)
	require.NoError(t, d.DeleteRecord(ctx, rec.Id))

	_, err = d.Records().GetRecord(ctx, rec.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	outcomes, err := d.Pipeline().ProcessOnce(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, core.JobStateDeadLettered, outcomes[0].State)
}

func TestDirectory_Search(t *testing.T) {
	d, provider := newTestDirectory(t)
	ctx := context.Background()

	_, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)
	_, err = d.Pipeline().ProcessOnce(ctx)
	require.NoError(t, err)

	result, err := d.Search(ctx, "where can I get pizza?", "Salem")
	require.NoError(t, err)
	assert.Equal(t, core.SearchModeSemantic, result.Mode)
	require.Len(t, result.Businesses, 1)
	assert.Equal(t, "Roma Pizza", result.Businesses[0].Record.Name)
	assert.Equal(t, 1, provider.GetMockCompleter().CallCount())

	_, err = d.Search(ctx, "hi", "")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDirectory_ReplayJob(t *testing.T) {
	d, provider := newTestDirectory(t)
	ctx := context.Background()
	provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.NewError(ai.KindInvalidInput, "embed", errors.New("input rejected"))
	})

	_, err := d.CreateRecord(ctx, pizzeria("Salem"))
	require.NoError(t, err)
	outcomes, err := d.Pipeline().ProcessOnce(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, core.JobStateDeadLettered, outcomes[0].State)

	job, err := d.ReplayJob(ctx, outcomes[0].JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateEnqueued, job.State)
	assert.Equal(t, 1, job.Attempt)

	_, err = d.ReplayJob(ctx, outcomes[0].JobID)
	assert.ErrorIs(t, err, storage.ErrInvalidJobState, "only dead-lettered jobs can be replayed")
}

func TestDirectory_Backfill(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	for _, city := range []string{"Salem", "Portland", "Eugene"} {
		_, err := d.Records().AddRecord(ctx, pizzeria(city))
		require.NoError(t, err)
	}

	config := reembed.DefaultConfig()
	config.Direct = true
	backfiller, err := d.NewBackfiller(config, nil)
	require.NoError(t, err)

	summary, err := backfiller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Embedded)

	pending, err := d.Records().ListRecordsWithoutVector(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDirectory_CloseReleasesProvider(t *testing.T) {
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder().WithDimension(testDim), mock.NewMockCompleter())
	d, err := NewDirectory(context.Background(), "", WithInMemory(),
		WithAIConfig(ai.NewConfig(ai.WithDimension(testDim))),
		WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.True(t, provider.Closed())
}
