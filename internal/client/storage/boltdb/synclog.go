package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

const keySyncLogEntries = "entries"

// SaveSyncLog replaces the persisted sync log with entries (oldest first)
func (s *Storage) SaveSyncLog(ctx context.Context, entries []*models.SyncLogEntry) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal sync log: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncLog).Put([]byte(keySyncLogEntries), data)
	})

	return txError("save sync log", err)
}

// LoadSyncLog returns the persisted sync log, oldest first.
// Returns an empty slice if nothing was saved yet
func (s *Storage) LoadSyncLog(ctx context.Context) ([]*models.SyncLogEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	entries := make([]*models.SyncLogEntry, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSyncLog).Get([]byte(keySyncLogEntries))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("%w: failed to unmarshal sync log: %w", storage.ErrInvalidData, err)
		}
		return nil
	})

	if err != nil {
		return nil, txError("load sync log", err)
	}

	return entries, nil
}
