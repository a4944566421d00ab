package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
)

const (
	keyLastSyncTimestamp = "last_sync_timestamp"
	keyServerCursor      = "server_cursor"
)

var _ storage.MetadataStorage = (*Storage)(nil)

// SaveLastSyncTimestamp saves the local watermark of the last fully successful sync
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	return s.putInt64(keyLastSyncTimestamp, timestamp)
}

// GetLastSyncTimestamp retrieves the local watermark of the last fully successful sync
// Returns 0 if no sync has been performed yet
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	return s.getInt64(keyLastSyncTimestamp)
}

// SaveServerCursor saves the server cursor of the last fully successful sync
func (s *Storage) SaveServerCursor(ctx context.Context, cursor int64) error {
	return s.putInt64(keyServerCursor, cursor)
}

// GetServerCursor retrieves the server cursor of the last fully successful sync
// Returns 0 if no sync has been performed yet
func (s *Storage) GetServerCursor(ctx context.Context) (int64, error) {
	return s.getInt64(keyServerCursor)
}

func (s *Storage) putInt64(key string, value int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(value))

		return tx.Bucket(bucketMetadata).Put([]byte(key), buf)
	})

	return txError("save "+key, err)
}

func (s *Storage) getInt64(key string) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var value int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketMetadata).Get([]byte(key))
		if buf == nil {
			// Первая синхронизация
			return nil
		}
		if len(buf) != 8 {
			return fmt.Errorf("corrupted %s of %d bytes", key, len(buf))
		}

		value = int64(binary.BigEndian.Uint64(buf))
		return nil
	})

	if err != nil {
		return 0, txError("get "+key, err)
	}

	return value, nil
}
