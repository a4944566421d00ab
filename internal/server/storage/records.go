package storage

import (
	"context"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// RecordStorage defines interface for server-side record persistence
type RecordStorage interface {
	// GetRecord retrieves a record by key, active or deleted
	// Returns ErrRecordNotFound if the key is unknown
	GetRecord(ctx context.Context, key string) (*models.Record, error)

	// ListRecords returns active records, or deleted ones when deleted is true
	ListRecords(ctx context.Context, deleted bool) ([]*models.Record, error)

	// PutRecord creates or overwrites the record as given
	PutRecord(ctx context.Context, record *models.Record) error

	// ApplyRecord merges an incoming record with the stored one by LWW and
	// writes the winner. Returns true if the stored record changed
	ApplyRecord(ctx context.Context, record *models.Record) (bool, error)

	// RecordsSince returns all records (including deleted) written after cursor,
	// in write order, and the cursor of the last returned write.
	// Every write is stamped with the next value of a server-side sequence,
	// so the cursor does not depend on the writers' clocks
	RecordsSince(ctx context.Context, cursor int64) ([]*models.Record, int64, error)

	// SoftDeleteRecord marks the record deleted with a fresh mutatedAt.
	// Deleting an already deleted record is a no-op.
	// Returns ErrRecordNotFound if the key is unknown
	SoftDeleteRecord(ctx context.Context, key string) error

	// RestoreRecord clears the deleted flag with a fresh mutatedAt.
	// Returns ErrRecordNotFound if the record is not deleted
	RestoreRecord(ctx context.Context, key string) error

	// PurgeRecord removes a deleted record.
	// Returns ErrRecordNotFound if the record is not deleted
	PurgeRecord(ctx context.Context, key string) error
}

// SyncEventStorage defines interface for the server-side sync audit log
type SyncEventStorage interface {
	// SaveSyncEvent stores one processed sync request
	SaveSyncEvent(ctx context.Context, event *models.SyncEvent) error

	// ListSyncEvents returns up to limit events, newest first
	ListSyncEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error)
}
