package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newTestRepos(t *testing.T) *MemoryRepositories {
	t.Helper()
	repos, err := NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func testFields(name, city string) core.RecordFields {
	return core.RecordFields{
		Name:        name,
		Description: "A place called " + name,
		Categories:  []string{"Restaurant"},
		Address:     core.Address{City: city, State: "OR"},
		Contact:     core.Contact{Phone: "555-0100"},
	}
}

func TestRecordRepository_AddAndGet(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	rec, err := repos.Records.AddRecord(ctx, testFields("  Luigi's  ", "Portland"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Id)
	assert.Equal(t, "Luigi's", rec.Name)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.False(t, rec.HasVector())

	got, err := repos.Records.GetRecord(ctx, rec.Id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = repos.Records.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordRepository_AddRejectsInvalid(t *testing.T) {
	repos := newTestRepos(t)

	fields := testFields("", "Portland")
	_, err := repos.Records.AddRecord(context.Background(), fields)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrEmptyName)
}

func TestRecordRepository_ListRecords(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	for _, f := range []core.RecordFields{
		testFields("First", "Portland"),
		testFields("Second", "Seattle"),
		testFields("Third", "South Portland"),
	} {
		_, err := repos.Records.AddRecord(ctx, f)
		require.NoError(t, err)
	}

	all, err := repos.Records.ListRecords(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "First", all[0].Name)
	assert.Equal(t, "Third", all[2].Name)

	portland, err := repos.Records.ListRecords(ctx, " portland ")
	require.NoError(t, err)
	require.Len(t, portland, 2)
	assert.Equal(t, "First", portland[0].Name)
	assert.Equal(t, "Third", portland[1].Name)

	none, err := repos.Records.ListRecords(ctx, "Boise")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordRepository_CityFilterIsLiteral(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	for _, f := range []core.RecordFields{
		testFields("Crumb", "Portland"),
		testFields("Ferry", "St_Helens"),
		testFields("Corner", "100% Town"),
	} {
		_, err := repos.Records.AddRecord(ctx, f)
		require.NoError(t, err)
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"_", []string{"Ferry"}},
		{"%", []string{"Corner"}},
		{"st_h", []string{"Ferry"}},
		{"P%d", nil},
		{"PORT", []string{"Crumb"}},
	}
	for _, tt := range tests {
		got, err := repos.Records.ListRecords(ctx, tt.filter)
		require.NoError(t, err)
		var names []string
		for _, rec := range got {
			names = append(names, rec.Name)
		}
		assert.Equal(t, tt.want, names, "filter %q", tt.filter)
	}
}

func TestRecordRepository_ListRecordsCancelled(t *testing.T) {
	repos := newTestRepos(t)
	_, err := repos.Records.AddRecord(context.Background(), testFields("Only", "Portland"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repos.Records.ListRecords(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordRepository_UpdateEmbedding(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	vec := core.Vector{0.1, 0.2, 0.3, 0.4}

	rec, err := repos.Records.AddRecord(ctx, testFields("Cafe", "Portland"))
	require.NoError(t, err)
	enqueuedAt := rec.UpdatedAt

	t.Run("writes when no vector", func(t *testing.T) {
		applied, err := repos.Records.UpdateEmbedding(ctx, rec.Id, vec, enqueuedAt)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repos.Records.GetRecord(ctx, rec.Id)
		require.NoError(t, err)
		assert.Equal(t, vec, got.Vector)
		assert.True(t, got.UpdatedAt.After(enqueuedAt) || got.UpdatedAt.Equal(enqueuedAt))
	})

	t.Run("stale enqueue is a no-op", func(t *testing.T) {
		time.Sleep(2 * time.Microsecond)
		applied, err := repos.Records.UpdateEmbedding(ctx, rec.Id, core.Vector{1, 1, 1, 1}, enqueuedAt.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := repos.Records.GetRecord(ctx, rec.Id)
		require.NoError(t, err)
		assert.Equal(t, vec, got.Vector)
	})

	t.Run("newer enqueue overwrites", func(t *testing.T) {
		newer := time.Now().Add(time.Minute)
		applied, err := repos.Records.UpdateEmbedding(ctx, rec.Id, core.Vector{1, 1, 1, 1}, newer)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := repos.Records.UpdateEmbedding(ctx, rec.Id, core.Vector{1, 2}, time.Now())
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := repos.Records.UpdateEmbedding(ctx, "missing", vec, time.Now())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRecordRepository_UpdateRecordClearsVector(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	rec, err := repos.Records.AddRecord(ctx, testFields("Cafe", "Portland"))
	require.NoError(t, err)
	_, err = repos.Records.UpdateEmbedding(ctx, rec.Id, core.Vector{1, 0, 0, 0}, rec.UpdatedAt)
	require.NoError(t, err)

	missing, err := repos.Records.ListRecordsWithoutVector(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)

	fields := testFields("Cafe Renamed", "Portland")
	updated, err := repos.Records.UpdateRecord(ctx, rec.Id, fields)
	require.NoError(t, err)
	assert.Equal(t, "Cafe Renamed", updated.Name)
	assert.False(t, updated.HasVector())
	assert.Equal(t, rec.CreatedAt, updated.CreatedAt)

	missing, err = repos.Records.ListRecordsWithoutVector(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, rec.Id, missing[0].Id)

	_, err = repos.Records.UpdateRecord(ctx, "missing", fields)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordRepository_Delete(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	rec, err := repos.Records.AddRecord(ctx, testFields("Gone", "Portland"))
	require.NoError(t, err)

	require.NoError(t, repos.Records.DeleteRecord(ctx, rec.Id))
	_, err = repos.Records.GetRecord(ctx, rec.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := repos.Records.ListRecords(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, repos.Records.DeleteRecord(ctx, rec.Id), storage.ErrNotFound)
}
