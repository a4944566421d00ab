package storage

import (
	"context"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/archive"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// ImportResult reports how many archive records were imported, skipped or rejected.
type ImportResult = archive.Result

// Backend defines durable per-device persistence of records.
// Every implementation keeps two namespaces: active records and the recycle bin.
// A key lives in at most one of them at a time.
type Backend interface {
	// Get returns the record with key from either namespace.
	// Returns ErrNotFound if the key is unknown
	Get(ctx context.Context, key string) (*models.Record, error)

	// List returns all active (non-deleted) records
	List(ctx context.Context) ([]*models.Record, error)

	// Put creates or overwrites the record by key. MutatedAt is stored as given.
	// A record with Deleted=true is stored in the recycle namespace.
	// Returns ErrInvalidData if the record fails validation
	Put(ctx context.Context, record *models.Record) error

	// SoftDelete moves the record into the recycle namespace with Deleted=true
	// and a fresh MutatedAt. Deleting an already deleted record is a no-op
	SoftDelete(ctx context.Context, key string) error

	// ListDeleted returns all records in the recycle namespace
	ListDeleted(ctx context.Context) ([]*models.Record, error)

	// Restore clears Deleted, refreshes MutatedAt and moves the record back
	// to the active namespace. Returns ErrNotFound if the key is not recycled
	Restore(ctx context.Context, key string) error

	// Purge irreversibly removes the record from the recycle namespace.
	// Returns ErrNotFound if the key is not recycled
	Purge(ctx context.Context, key string) error

	// ExportAll returns a zip archive of all active records
	ExportAll(ctx context.Context) ([]byte, error)

	// ImportAll writes records from an archive produced by ExportAll
	ImportAll(ctx context.Context, blob []byte) (*ImportResult, error)
}
