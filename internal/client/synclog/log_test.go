package synclog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/boltdb"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/storagetest"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupBolt(t *testing.T, path string) *boltdb.Storage {
	t.Helper()

	s, err := boltdb.New(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func openLog(t *testing.T, store *boltdb.Storage, opts ...Option) *Log {
	t.Helper()

	opts = append([]Option{
		WithPersister(store),
		WithNow(func() time.Time { return testNow }),
	}, opts...)
	l, err := Open(context.Background(), store, discardLogger(), opts...)
	require.NoError(t, err)
	return l
}

func TestLog_AppendAndEvict(t *testing.T) {
	ctx := context.Background()
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store, WithCapacity(3))

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
			ID:        fmt.Sprintf("e%d", i),
			Direction: models.DirectionIncoming,
			Status:    models.StatusSuccess,
		}))
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "e5", entries[0].ID, "newest first")
	assert.Equal(t, "e3", entries[2].ID)
	assert.Equal(t, testNow.UnixMilli(), entries[0].Timestamp)

	_, ok := l.Get("e1")
	assert.False(t, ok, "oldest entries are evicted")

	got, ok := l.Get("e4")
	require.True(t, ok)
	assert.Equal(t, models.DirectionIncoming, got.Direction)
}

func TestLog_AssignsID(t *testing.T) {
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store)

	require.NoError(t, l.Append(context.Background(), &models.SyncLogEntry{Status: models.StatusFailed}))
	require.NoError(t, l.Append(context.Background(), &models.SyncLogEntry{Status: models.StatusFailed}))

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.NotNil(t, entries[0].Changes)
}

func TestLog_EntriesAreCopies(t *testing.T) {
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store)
	require.NoError(t, l.Append(context.Background(), &models.SyncLogEntry{ID: "e1"}))

	l.Entries()[0].Status = models.StatusFailed

	got, ok := l.Get("e1")
	require.True(t, ok)
	assert.Empty(t, got.Status)
}

func TestLog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	store, err := boltdb.New(ctx, path)
	require.NoError(t, err)
	l, err := Open(ctx, store, discardLogger(), WithPersister(store))
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{ID: "kept", Status: models.StatusPartial}))
	require.NoError(t, store.Close())

	reopened := setupBolt(t, path)
	l2 := openLog(t, reopened)

	got, ok := l2.Get("kept")
	require.True(t, ok)
	assert.Equal(t, models.StatusPartial, got.Status)
}

// failingPersister не может сохранить журнал
type failingPersister struct{}

func (failingPersister) LoadSyncLog(context.Context) ([]*models.SyncLogEntry, error) {
	return nil, nil
}

func (failingPersister) SaveSyncLog(context.Context, []*models.SyncLogEntry) error {
	return storage.ErrFilesystem
}

func TestLog_PersistError(t *testing.T) {
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l, err := Open(context.Background(), store, discardLogger(), WithPersister(failingPersister{}))
	require.NoError(t, err)

	err = l.Append(context.Background(), &models.SyncLogEntry{ID: "e1"})
	assert.ErrorIs(t, err, storage.ErrFilesystem)

	// запись остается в памяти
	_, ok := l.Get("e1")
	assert.True(t, ok)
}

func TestLog_UndoUpdated(t *testing.T) {
	ctx := context.Background()
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store)

	previous := storagetest.NewSpool("S1", 100)
	next := storagetest.NewSpool("S1", testNow.UnixMilli()+5000)
	next.Fields["weight"] = 250.0
	next.Fields[models.FieldColor] = "Orange"
	require.NoError(t, store.Put(ctx, next))

	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
		ID:        "pass-1",
		Direction: models.DirectionIncoming,
		Status:    models.StatusSuccess,
		Changes: []models.SyncChange{{
			Key:              "S1",
			Action:           models.ActionUpdated,
			PreviousSnapshot: previous,
			NewSnapshot:      next,
		}},
	}))

	result := l.Undo(ctx, "pass-1")
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, 1, result.RestoredCount)

	got, err := store.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, previous.Fields, got.Fields)
	assert.Greater(t, got.MutatedAt, next.MutatedAt, "undo moves forward in time")

	entry, ok := l.Get("pass-1")
	require.True(t, ok)
	assert.Equal(t, testNow.UnixMilli(), entry.UndoneAt)

	entries := l.Entries()
	require.Len(t, entries, 2)
	audit := entries[0]
	assert.Equal(t, models.DirectionManual, audit.Direction)
	assert.Equal(t, models.StatusSuccess, audit.Status)
	require.Len(t, audit.Changes, 1)
	assert.Equal(t, models.ActionUpdated, audit.Changes[0].Action)
	assert.Equal(t, "Orange", audit.Changes[0].PreviousSnapshot.Color())

	again := l.Undo(ctx, "pass-1")
	assert.False(t, again.Success)
	assert.Contains(t, again.Message, "already undone")
}

func TestLog_UndoCreatedAndDeleted(t *testing.T) {
	ctx := context.Background()
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store)

	created := storagetest.NewSpool("new", 100)
	require.NoError(t, store.Put(ctx, created))

	alive := storagetest.NewSpool("gone", 100)
	tomb := alive.Clone()
	tomb.Deleted = true
	tomb.MutatedAt = 200
	require.NoError(t, store.Put(ctx, tomb))

	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
		ID: "pass-1",
		Changes: []models.SyncChange{
			{Key: "new", Action: models.ActionCreated, NewSnapshot: created},
			{Key: "gone", Action: models.ActionDeleted, PreviousSnapshot: alive, NewSnapshot: tomb},
		},
	}))

	result := l.Undo(ctx, "pass-1")
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, 2, result.RestoredCount)

	// созданная запись уходит в корзину
	got, err := store.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// удаленная запись возвращается
	got, err = store.Get(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Greater(t, got.MutatedAt, int64(200))

	active, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "gone", active[0].Key)
}

func TestLog_UndoFailures(t *testing.T) {
	ctx := context.Background()
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	l := openLog(t, store)

	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{ID: "empty"}))
	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
		ID: "missing-record",
		Changes: []models.SyncChange{
			{Key: "vanished", Action: models.ActionCreated},
		},
	}))
	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
		ID: "no-snapshot",
		Changes: []models.SyncChange{
			{Key: "x", Action: models.ActionUpdated},
		},
	}))

	tests := []struct {
		name    string
		id      string
		message string
	}{
		{name: "unknown entry", id: "nope", message: "not found"},
		{name: "no changes", id: "empty", message: "no changes"},
		{name: "created record missing", id: "missing-record", message: "vanished"},
		{name: "updated without snapshot", id: "no-snapshot", message: "previous snapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := l.Undo(ctx, tt.id)
			assert.False(t, result.Success)
			assert.Zero(t, result.RestoredCount)
			assert.Contains(t, result.Message, tt.message)
		})
	}

	// неудачная отмена не помечает запись и не пишет аудит
	entry, ok := l.Get("missing-record")
	require.True(t, ok)
	assert.Zero(t, entry.UndoneAt)
	assert.Len(t, l.Entries(), 3)
}

// brokenStore отказывает при записи
type brokenStore struct {
	RecordStore
}

func (brokenStore) Put(context.Context, *models.Record) error {
	return errors.New("read-only")
}

func TestLog_UndoPartial(t *testing.T) {
	ctx := context.Background()
	store := setupBolt(t, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, store.Put(ctx, storagetest.NewSpool("created", 1)))

	l, err := Open(ctx, brokenStore{RecordStore: store}, discardLogger(), WithNow(func() time.Time { return testNow }))
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, &models.SyncLogEntry{
		ID: "pass-1",
		Changes: []models.SyncChange{
			{Key: "created", Action: models.ActionCreated},
			{Key: "updated", Action: models.ActionUpdated, PreviousSnapshot: storagetest.NewSpool("updated", 1)},
		},
	}))

	result := l.Undo(ctx, "pass-1")
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.RestoredCount)
	assert.Contains(t, result.Message, "read-only")

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusPartial, entries[0].Status)
	assert.Equal(t, 1, entries[0].Summary.Errors)
}
