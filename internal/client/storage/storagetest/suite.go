// Package storagetest holds the contract test-suite every storage.Backend
// implementation must pass. Backends call RunBackendSuite from their own
// tests with a factory producing a fresh, empty backend.
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// Factory creates an empty backend. Cleanup should be registered with t.Cleanup.
type Factory func(t *testing.T) storage.Backend

// NewSpool builds a valid test record.
func NewSpool(key string, mutatedAt int64) *models.Record {
	return &models.Record{
		Key:       key,
		MutatedAt: mutatedAt,
		CreatedAt: mutatedAt,
		Fields: models.Fields{
			models.FieldType:  "PLA",
			models.FieldBrand: "Prusament",
			models.FieldColor: "Galaxy Black",
			"weight":          1000.0,
			"diameter":        1.75,
			"opened":          true,
		},
	}
}

// RunBackendSuite runs the shared contract tests against backends built by newBackend.
func RunBackendSuite(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newBackend(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newBackend(t)) })
	t.Run("PutInvalid", func(t *testing.T) { testPutInvalid(t, newBackend(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newBackend(t)) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, newBackend(t)) })
	t.Run("SoftDeleteIdempotent", func(t *testing.T) { testSoftDeleteIdempotent(t, newBackend(t)) })
	t.Run("RestoreRoundTrip", func(t *testing.T) { testRestoreRoundTrip(t, newBackend(t)) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, newBackend(t)) })
	t.Run("PutTombstone", func(t *testing.T) { testPutTombstone(t, newBackend(t)) })
	t.Run("ExportImport", func(t *testing.T) { testExportImport(t, newBackend(t), newBackend(t)) })
	t.Run("ImportGarbage", func(t *testing.T) { testImportGarbage(t, newBackend(t)) })
}

func keys(records []*models.Record) []string {
	result := make([]string, 0, len(records))
	for _, r := range records {
		result = append(result, r.Key)
	}
	sort.Strings(result)
	return result
}

func testRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	r := NewSpool("S1", 1_700_000_000_000)

	require.NoError(t, b.Put(ctx, r))

	got, err := b.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, r.Key, got.Key)
	assert.Equal(t, r.Fields, got.Fields)
	assert.Equal(t, r.CreatedAt, got.CreatedAt)
	assert.False(t, got.Deleted)
	assert.GreaterOrEqual(t, got.MutatedAt, r.MutatedAt)

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, keys(list))
}

func testGetMissing(t *testing.T, b storage.Backend) {
	_, err := b.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, storage.IsRetryable(err))
}

func testPutInvalid(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	noKey := NewSpool("", 1)
	err := b.Put(ctx, noKey)
	assert.ErrorIs(t, err, storage.ErrInvalidData)

	noType := NewSpool("S1", 1)
	delete(noType.Fields, models.FieldType)
	err = b.Put(ctx, noType)
	assert.ErrorIs(t, err, storage.ErrInvalidData)

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testOverwrite(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))

	updated := NewSpool("S1", 200)
	updated.Fields["weight"] = 640.0
	updated.Fields[models.FieldColor] = "Orange"
	require.NoError(t, b.Put(ctx, updated))

	got, err := b.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 640.0, got.Fields["weight"])
	assert.Equal(t, "Orange", got.Color())
	assert.Equal(t, int64(200), got.MutatedAt)

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "overwrite must not leave a second copy behind")
}

func testSoftDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))
	require.NoError(t, b.Put(ctx, NewSpool("S2", 100)))

	require.NoError(t, b.SoftDelete(ctx, "S1"))

	got, err := b.Get(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Greater(t, got.MutatedAt, int64(100), "deletion must refresh mutatedAt")
	assert.Equal(t, 1000.0, got.Fields["weight"], "tombstone keeps its fields")

	active, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, keys(active))

	deleted, err := b.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, keys(deleted))

	err = b.SoftDelete(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSoftDeleteIdempotent(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))
	require.NoError(t, b.SoftDelete(ctx, "S1"))

	first, err := b.Get(ctx, "S1")
	require.NoError(t, err)

	require.NoError(t, b.SoftDelete(ctx, "S1"))

	second, err := b.Get(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, first.Equal(second), "second delete must not change the tombstone")
}

func testRestoreRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))
	require.NoError(t, b.SoftDelete(ctx, "S1"))

	tombstone, err := b.Get(ctx, "S1")
	require.NoError(t, err)

	require.NoError(t, b.Restore(ctx, "S1"))

	got, err := b.Get(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Greater(t, got.MutatedAt, tombstone.MutatedAt, "restore must refresh mutatedAt")

	active, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, keys(active))

	deleted, err := b.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	err = b.Restore(ctx, "S1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "active records cannot be restored")
}

func testPurge(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))
	require.NoError(t, b.Put(ctx, NewSpool("S2", 100)))
	require.NoError(t, b.SoftDelete(ctx, "S1"))

	err := b.Purge(ctx, "S2")
	assert.ErrorIs(t, err, storage.ErrNotFound, "active records cannot be purged")

	require.NoError(t, b.Purge(ctx, "S1"))

	_, err = b.Get(ctx, "S1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = b.Restore(ctx, "S1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	deleted, err := b.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func testPutTombstone(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, NewSpool("S1", 100)))

	tombstone := NewSpool("S1", 300)
	tombstone.Deleted = true
	require.NoError(t, b.Put(ctx, tombstone))

	active, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	deleted, err := b.ListDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, int64(300), deleted[0].MutatedAt)

	// активная версия с большим timestamp возвращает запись из корзины
	revived := NewSpool("S1", 400)
	require.NoError(t, b.Put(ctx, revived))

	active, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, keys(active))

	deleted, err = b.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func testExportImport(t *testing.T, source, target storage.Backend) {
	ctx := context.Background()
	require.NoError(t, source.Put(ctx, NewSpool("S1", 100)))
	require.NoError(t, source.Put(ctx, NewSpool("S2", 200)))
	require.NoError(t, source.Put(ctx, NewSpool("S3", 300)))
	require.NoError(t, source.SoftDelete(ctx, "S3"))

	blob, err := source.ExportAll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	require.NoError(t, target.Put(ctx, NewSpool("S2", 500)))

	result, err := target.ImportAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped, "newer local S2 is kept")
	assert.Empty(t, result.Errors)

	active, err := target.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, keys(active), "recycled records are not exported")

	got, err := target.Get(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.MutatedAt)
}

func testImportGarbage(t *testing.T, b storage.Backend) {
	_, err := b.ImportAll(context.Background(), []byte("not an archive"))
	assert.ErrorIs(t, err, storage.ErrInvalidData)
}
