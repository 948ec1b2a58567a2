package badger

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/yellowbook/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	backend, err := OpenBackend(path, false)
	if backend != nil {
		backend.Close()
	}
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithUpdate_CommitsAndPropagatesErrors(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	key := []byte("test:key")
	require.NoError(t, backend.WithUpdate(func(tx *badger.Txn) error {
		return tx.Set(key, []byte("v1"))
	}))

	boom := errors.New("boom")
	err = backend.WithUpdate(func(tx *badger.Txn) error {
		if err := tx.Set(key, []byte("v2")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var got string
	require.NoError(t, backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			got = string(val)
			return nil
		})
	}, false))
	assert.Equal(t, "v1", got, "failed update must not be committed")
}

func TestWithUpdate_RetriesConflicts(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	key := []byte("test:counter")
	var runs atomic.Int32
	err = backend.WithUpdate(func(tx *badger.Txn) error {
		if _, err := tx.Get(key); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		// Commit a conflicting write from outside on the first run only.
		if runs.Add(1) == 1 {
			if err := backend.db.Update(func(other *badger.Txn) error {
				return other.Set(key, []byte("other"))
			}); err != nil {
				return err
			}
		}
		return tx.Set(key, []byte("mine"))
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), runs.Load())
}
