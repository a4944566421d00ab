package boltdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
)

var (
	// BoltDB bucket names
	bucketRecords  = []byte("records")
	bucketRecycle  = []byte("recycle")
	bucketMetadata = []byte("metadata")
	bucketSyncLog  = []byte("synclog")
)

// openTimeout bounds waiting for the file lock held by another process
const openTimeout = 5 * time.Second

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db     *bbolt.DB
	clock  crdt.Clock
	logger *slog.Logger
}

// Option configures Storage
type Option func(*Storage)

// WithClock sets the clock used for MutatedAt on soft delete and restore
func WithClock(clock crdt.Clock) Option {
	return func(s *Storage) {
		s.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: failed to open boltdb: %w", storage.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: failed to open boltdb: %w", storage.ErrFilesystem, err)
	}

	s := &Storage{
		db:     db,
		clock:  crdt.NewMutationClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to initialize buckets: %w", storage.ErrFilesystem, err)
	}

	s.logger.DebugContext(ctx, "boltdb storage opened", "path", dbPath)

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketRecycle, bucketMetadata, bucketSyncLog} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// txError оставляет ошибки из таксономии как есть, остальные считает ошибками файловой системы
func txError(op string, err error) error {
	if err == nil {
		return nil
	}
	if storage.KindOf(err) != storage.KindUnknown {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", storage.ErrFilesystem, op, err)
}
