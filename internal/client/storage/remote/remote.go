// Package remote implements storage.Backend on top of the server's record
// CRUD endpoints.
package remote

import (
	"context"
	"fmt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// RecordsClient is the subset of the HTTP client used by the backend
type RecordsClient interface {
	ListRecords(ctx context.Context, deleted bool) ([]api.Record, error)
	GetRecord(ctx context.Context, key string) (*api.Record, error)
	PutRecord(ctx context.Context, record api.Record) error
	DeleteRecord(ctx context.Context, key string) error
	PurgeRecord(ctx context.Context, key string) error
	RestoreRecord(ctx context.Context, key string) error
	ExportRecords(ctx context.Context) ([]byte, error)
	ImportRecords(ctx context.Context, blob []byte) (*api.ImportResponse, error)
}

var _ storage.Backend = (*Backend)(nil)

// Backend stores records on the server. Soft delete and restore timestamps
// are assigned by the server
type Backend struct {
	client RecordsClient
}

// New creates a remote backend
func New(client RecordsClient) *Backend {
	return &Backend{client: client}
}

// Get returns the record from either namespace on the server
func (b *Backend) Get(ctx context.Context, key string) (*models.Record, error) {
	rec, err := b.client.GetRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	return models.RecordFromAPI(*rec), nil
}

// List returns the server's active records
func (b *Backend) List(ctx context.Context) ([]*models.Record, error) {
	records, err := b.client.ListRecords(ctx, false)
	if err != nil {
		return nil, err
	}
	return models.RecordsFromAPI(records), nil
}

// ListDeleted returns the server's recycle bin
func (b *Backend) ListDeleted(ctx context.Context) ([]*models.Record, error) {
	records, err := b.client.ListRecords(ctx, true)
	if err != nil {
		return nil, err
	}
	return models.RecordsFromAPI(records), nil
}

// Put uploads the record. Invalid records are rejected before any request
func (b *Backend) Put(ctx context.Context, record *models.Record) error {
	if err := validation.ValidateRecord(record); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidData, err)
	}
	return b.client.PutRecord(ctx, record.ToAPI())
}

// SoftDelete moves the record into the server's recycle bin
func (b *Backend) SoftDelete(ctx context.Context, key string) error {
	return b.client.DeleteRecord(ctx, key)
}

// Restore moves the record back from the server's recycle bin
func (b *Backend) Restore(ctx context.Context, key string) error {
	return b.client.RestoreRecord(ctx, key)
}

// Purge removes the record from the server's recycle bin
func (b *Backend) Purge(ctx context.Context, key string) error {
	return b.client.PurgeRecord(ctx, key)
}

// ExportAll downloads the archive of active records
func (b *Backend) ExportAll(ctx context.Context) ([]byte, error) {
	return b.client.ExportRecords(ctx)
}

// ImportAll uploads an archive; the server applies the import policy
func (b *Backend) ImportAll(ctx context.Context, blob []byte) (*storage.ImportResult, error) {
	resp, err := b.client.ImportRecords(ctx, blob)
	if err != nil {
		return nil, err
	}

	result := &storage.ImportResult{
		Imported: resp.Imported,
		Skipped:  resp.Skipped,
		Errors:   resp.Errors,
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	return result, nil
}
