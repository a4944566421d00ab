package recordstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/boltdb"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/storagetest"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// countingBackend считает обращения к List
type countingBackend struct {
	storage.Backend
	lists atomic.Int32
	fail  error
}

func (b *countingBackend) List(ctx context.Context) ([]*models.Record, error) {
	b.lists.Add(1)
	if b.fail != nil {
		return nil, b.fail
	}
	return b.Backend.List(ctx)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setupStore(t *testing.T, opts ...Option) (*Store, *countingBackend, *fakeClock) {
	t.Helper()

	bolt, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bolt.Close()
	})

	backend := &countingBackend{Backend: bolt}
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts = append([]Option{WithNow(clock.Now)}, opts...)
	return New(backend, logger, opts...), backend, clock
}

func TestStore_BackendContract(t *testing.T) {
	storagetest.RunBackendSuite(t, func(t *testing.T) storage.Backend {
		s, _, _ := setupStore(t)
		return s
	})
}

func TestStore_ListUsesIndexUntilTTL(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := setupStore(t, WithTTL(time.Minute))

	require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("b", 1)))
	require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("a", 1)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Key)
	assert.Equal(t, int32(1), backend.lists.Load())

	// запись в обход Store не видна до истечения TTL
	require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("c", 1)))

	clock.now = clock.now.Add(59 * time.Second)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int32(1), backend.lists.Load())

	clock.now = clock.now.Add(time.Second)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, int32(2), backend.lists.Load())
}

func TestStore_MutationsInvalidate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(s *Store) error
		want   []string
	}{
		{
			name:   "put",
			mutate: func(s *Store) error { return s.Put(ctx, storagetest.NewSpool("new", 5)) },
			want:   []string{"a", "new"},
		},
		{
			name:   "soft delete",
			mutate: func(s *Store) error { return s.SoftDelete(ctx, "a") },
			want:   []string{},
		},
		{
			name:   "restore",
			mutate: func(s *Store) error { return s.Restore(ctx, "trash") },
			want:   []string{"a", "trash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, backend, _ := setupStore(t)
			require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("a", 1)))
			require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("trash", 1)))
			require.NoError(t, backend.Backend.SoftDelete(ctx, "trash"))

			_, err := s.List(ctx)
			require.NoError(t, err)

			require.NoError(t, tt.mutate(s))

			list, err := s.List(ctx)
			require.NoError(t, err)
			got := make([]string, 0, len(list))
			for _, r := range list {
				got = append(got, r.Key)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int32(2), backend.lists.Load())
		})
	}
}

func TestStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := setupStore(t)

	_, err := s.List(ctx)
	require.NoError(t, err)
	require.NoError(t, backend.Backend.Put(ctx, storagetest.NewSpool("external", 1)))

	s.Invalidate()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_ListError(t *testing.T) {
	s, backend, _ := setupStore(t)
	backend.fail = errors.New("boom")

	_, err := s.List(context.Background())
	assert.Error(t, err)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupStore(t)
	require.NoError(t, s.Put(ctx, storagetest.NewSpool("a", 1)))

	_, err := s.List(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Fields["weight"] = 1.0

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, again.Fields["weight"])
}

func TestStore_ChangedSince(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupStore(t)

	require.NoError(t, s.Put(ctx, storagetest.NewSpool("old", 10)))
	require.NoError(t, s.Put(ctx, storagetest.NewSpool("z-new", 30)))
	require.NoError(t, s.Put(ctx, storagetest.NewSpool("m-new", 20)))
	tomb := storagetest.NewSpool("gone", 25)
	tomb.Deleted = true
	require.NoError(t, s.Put(ctx, tomb))

	changed, err := s.ChangedSince(ctx, 10)
	require.NoError(t, err)

	keys := make([]string, 0, len(changed))
	for _, r := range changed {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"gone", "m-new", "z-new"}, keys)
}

func TestStore_Lookup(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupStore(t)

	rec, err := s.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.Put(ctx, storagetest.NewSpool("a", 1)))
	rec, err = s.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Key)
}
