package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/archive"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// RecordReadWriter is the subset of Backend needed by import.
type RecordReadWriter interface {
	Get(ctx context.Context, key string) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
}

// ExportArchive encodes the active records returned by list into an archive.
func ExportArchive(ctx context.Context, list func(ctx context.Context) ([]*models.Record, error)) ([]byte, error) {
	records, err := list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for export: %w", err)
	}

	blob, err := archive.Encode(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknown, err)
	}

	return blob, nil
}

// ImportArchive writes archive records into target, skipping entries that are
// not newer than the stored version. Written records get a fresh MutatedAt
// from clock so the next sync pass uploads them.
func ImportArchive(ctx context.Context, blob []byte, target RecordReadWriter, clock crdt.Clock) (*ImportResult, error) {
	result, err := archive.Import(ctx, blob, lookupTarget{rw: target}, clock)
	if err != nil {
		if errors.Is(err, archive.ErrMalformedArchive) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return result, err
	}
	return result, nil
}

type lookupTarget struct {
	rw RecordReadWriter
}

func (l lookupTarget) Lookup(ctx context.Context, key string) (*models.Record, bool, error) {
	rec, err := l.rw.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

func (l lookupTarget) Put(ctx context.Context, rec *models.Record) error {
	return l.rw.Put(ctx, rec)
}
