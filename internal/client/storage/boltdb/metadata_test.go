package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestSaveAndGetLastSyncTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	// Изначально, если timestamp не сохранён, ожидаем 0
	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	var expectedTS int64 = 1234567890
	require.NoError(t, store.SaveLastSyncTimestamp(ctx, expectedTS))

	gotTS, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, expectedTS, gotTS)

	// Перезапись
	require.NoError(t, store.SaveLastSyncTimestamp(ctx, expectedTS+1))
	gotTS, err = store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, expectedTS+1, gotTS)
}

func TestGetLastSyncTimestamp_Corrupted(t *testing.T) {
	store := newTestStorage(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(keyLastSyncTimestamp), []byte{1, 2, 3})
	})
	require.NoError(t, err)

	_, err = store.GetLastSyncTimestamp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted last_sync_timestamp")
}

func TestServerCursor(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	cursor, err := store.GetServerCursor(ctx)
	require.NoError(t, err)
	assert.Zero(t, cursor)

	require.NoError(t, store.SaveLastSyncTimestamp(ctx, 1_700_000_000_000))
	require.NoError(t, store.SaveServerCursor(ctx, 42))

	cursor, err = store.GetServerCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)

	// курсор и локальный watermark хранятся независимо
	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), ts)
}
