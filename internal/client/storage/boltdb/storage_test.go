package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/storagetest"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
)

// newTestStorage создает хранилище во временной директории
func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "records.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestBackendContract(t *testing.T) {
	storagetest.RunBackendSuite(t, func(t *testing.T) storage.Backend {
		return newTestStorage(t)
	})
}

func TestNew_Success(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "testdb.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() {
		require.NoError(t, store.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Проверяем, что бакеты существуют
	err = store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketRecycle, bucketMetadata, bucketSyncLog} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db"))
	require.Error(t, err)
	assert.Nil(t, store)
	assert.True(t, storage.IsRetryable(err))
}

func TestClose(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "testdb.db"))
	require.NoError(t, err)

	// Закрываем БД
	require.NoError(t, store.Close())
	assert.Nil(t, store.db)

	// Второй вызов Close не должен падать
	assert.NoError(t, store.Close())

	// Операции после закрытия возвращают ErrStorageClosed
	_, err = store.Get(context.Background(), "S1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.Put(context.Background(), storagetest.NewSpool("S1", 1)), storage.ErrStorageClosed)
	_, err = store.List(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestSoftDelete_UsesClock(t *testing.T) {
	clock := crdt.NewMutationClockWithSource(func() time.Time { return time.UnixMilli(5000) })
	store := newTestStorage(t, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, storagetest.NewSpool("S1", 100)))
	require.NoError(t, store.SoftDelete(ctx, "S1"))

	rec, err := store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	assert.Equal(t, int64(5000), rec.MutatedAt)

	// Запись из "будущего" все равно получает больший MutatedAt
	require.NoError(t, store.Put(ctx, storagetest.NewSpool("S2", 9000)))
	require.NoError(t, store.SoftDelete(ctx, "S2"))

	rec, err = store.Get(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, int64(9001), rec.MutatedAt)
}

func TestPut_MovesBetweenBuckets(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tombstone := storagetest.NewSpool("S1", 100)
	tombstone.Deleted = true
	require.NoError(t, store.Put(ctx, tombstone))

	// Ключ находится только в одном бакете
	err := store.db.View(func(tx *bbolt.Tx) error {
		assert.Nil(t, tx.Bucket(bucketRecords).Get([]byte("S1")))
		assert.NotNil(t, tx.Bucket(bucketRecycle).Get([]byte("S1")))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, storagetest.NewSpool("S1", 200)))

	err = store.db.View(func(tx *bbolt.Tx) error {
		assert.NotNil(t, tx.Bucket(bucketRecords).Get([]byte("S1")))
		assert.Nil(t, tx.Bucket(bucketRecycle).Get([]byte("S1")))
		return nil
	})
	require.NoError(t, err)
}

func TestGet_CorruptedRecord(t *testing.T) {
	store := newTestStorage(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte("bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrFilesystem)
}
