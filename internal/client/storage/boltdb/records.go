package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
)

var _ storage.Backend = (*Storage)(nil)

// Get retrieves a record from the active or the recycle bucket
func (s *Storage) Get(ctx context.Context, key string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketRecycle} {
			data := tx.Bucket(name).Get([]byte(key))
			if data == nil {
				continue
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			record = rec
			return nil
		}
		return storage.ErrNotFound
	})

	if err != nil {
		return nil, txError("get record", err)
	}

	return record, nil
}

// List returns all active records
func (s *Storage) List(ctx context.Context) ([]*models.Record, error) {
	return s.listBucket(bucketRecords)
}

// ListDeleted returns all records in the recycle bucket
func (s *Storage) ListDeleted(ctx context.Context) ([]*models.Record, error) {
	return s.listBucket(bucketRecycle)
}

// Put stores the record in the bucket matching its Deleted flag and removes
// it from the other one in the same transaction
func (s *Storage) Put(ctx context.Context, record *models.Record) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	if err := validation.ValidateRecord(record); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidData, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal record: %w", storage.ErrInvalidData, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		target, other := tx.Bucket(bucketRecords), tx.Bucket(bucketRecycle)
		if record.Deleted {
			target, other = other, target
		}

		if err := other.Delete([]byte(record.Key)); err != nil {
			return fmt.Errorf("failed to delete stale copy: %w", err)
		}
		return target.Put([]byte(record.Key), data)
	})

	return txError("put record", err)
}

// SoftDelete moves the record to the recycle bucket as a tombstone
func (s *Storage) SoftDelete(ctx context.Context, key string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		records, recycle := tx.Bucket(bucketRecords), tx.Bucket(bucketRecycle)

		data := records.Get([]byte(key))
		if data == nil {
			// Повторное удаление ничего не меняет
			if recycle.Get([]byte(key)) != nil {
				return nil
			}
			return storage.ErrNotFound
		}

		record, err := decodeRecord(data)
		if err != nil {
			return err
		}
		record.Deleted = true
		record.MutatedAt = crdt.NextAfter(s.clock, record.MutatedAt)

		return move(records, recycle, record)
	})

	return txError("soft delete record", err)
}

// Restore moves a recycled record back to the active bucket
func (s *Storage) Restore(ctx context.Context, key string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		records, recycle := tx.Bucket(bucketRecords), tx.Bucket(bucketRecycle)

		data := recycle.Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}

		record, err := decodeRecord(data)
		if err != nil {
			return err
		}
		record.Deleted = false
		record.MutatedAt = crdt.NextAfter(s.clock, record.MutatedAt)

		return move(recycle, records, record)
	})

	return txError("restore record", err)
}

// Purge removes the record from the recycle bucket
func (s *Storage) Purge(ctx context.Context, key string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		recycle := tx.Bucket(bucketRecycle)
		if recycle.Get([]byte(key)) == nil {
			return storage.ErrNotFound
		}
		return recycle.Delete([]byte(key))
	})

	return txError("purge record", err)
}

// ExportAll returns a zip archive of all active records
func (s *Storage) ExportAll(ctx context.Context) ([]byte, error) {
	return storage.ExportArchive(ctx, s.List)
}

// ImportAll writes records from an archive, keeping newer local versions
func (s *Storage) ImportAll(ctx context.Context, blob []byte) (*storage.ImportResult, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	return storage.ImportArchive(ctx, blob, s, s.clock)
}

func (s *Storage) listBucket(name []byte) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	records := make([]*models.Record, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(name).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})

	if err != nil {
		return nil, txError("list records", err)
	}

	return records, nil
}

// move переносит запись между бакетами внутри одной транзакции
func move(from, to *bbolt.Bucket, record *models.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := from.Delete([]byte(record.Key)); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if err := to.Put([]byte(record.Key), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func decodeRecord(data []byte) (*models.Record, error) {
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}
