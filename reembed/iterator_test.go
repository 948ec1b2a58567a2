package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

func setupTestDB(t *testing.T) *badger.MemoryRepositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func addRecords(t *testing.T, repos *badger.MemoryRepositories, n int) []*core.Record {
	t.Helper()
	records := make([]*core.Record, n)
	for i := range records {
		rec, err := repos.Records.AddRecord(context.Background(), core.RecordFields{
			Name:        fmt.Sprintf("Business %d", i),
			Description: "Test business",
			Categories:  []string{"Test"},
			Address:     core.Address{City: "Eugene"},
		})
		require.NoError(t, err)
		records[i] = rec
	}
	return records
}

func ids(records []*core.Record) []core.RecordID {
	out := make([]core.RecordID, len(records))
	for i, r := range records {
		out[i] = r.Id
	}
	return out
}

func TestRecordIterator_Basic(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	added := addRecords(t, repos, 5)

	// Already embedded records are skipped.
	_, err := repos.Records.UpdateEmbedding(ctx, added[1].Id, core.Vector{1, 0, 0}, added[1].UpdatedAt)
	require.NoError(t, err)

	iter := NewRecordIterator(repos.Records, 2)
	var batches [][]core.RecordID
	err = iter.ForEach(ctx, func(records []*core.Record) error {
		batches = append(batches, ids(records))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, [][]core.RecordID{
		{added[0].Id, added[2].Id},
		{added[3].Id, added[4].Id},
	}, batches)
}

func TestRecordIterator_Empty(t *testing.T) {
	repos := setupTestDB(t)

	called := false
	err := NewRecordIterator(repos.Records, 10).ForEach(context.Background(), func([]*core.Record) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRecordIterator_ResumeAfter(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	added := addRecords(t, repos, 4)

	pending, err := NewRecordIterator(repos.Records, 10).ResumeAfter(added[1].Id).Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(added[2:]), ids(pending))

	// Unknown position restarts from the beginning.
	pending, err = NewRecordIterator(repos.Records, 10).ResumeAfter("gone").Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(added), ids(pending))
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	repos := setupTestDB(t)
	addRecords(t, repos, 5)

	boom := fmt.Errorf("boom")
	calls := 0
	err := NewRecordIterator(repos.Records, 2).ForEach(context.Background(), func([]*core.Record) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_ContextCanceled(t *testing.T) {
	repos := setupTestDB(t)
	addRecords(t, repos, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRecordIterator(repos.Records, 2).ForEach(ctx, func([]*core.Record) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRecordIterator_DefaultBatchSize(t *testing.T) {
	iter := NewRecordIterator(nil, 0)
	assert.Equal(t, DefaultBatchSize, iter.batchSize)
}
