// Package recordstore кэширует активные записи поверх storage.Backend.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// DefaultTTL время жизни индекса активных записей
const DefaultTTL = 30 * time.Second

// Store индекс key -> запись поверх Backend.
// Все изменения проходят через Store и сбрасывают индекс.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
	index   map[string]*models.Record
	loaded  time.Time
	ttl     time.Duration
	mu      sync.Mutex
}

// Option настраивает Store
type Option func(*Store)

// WithTTL задает время жизни индекса
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithNow задает источник времени. Используется для тестирования
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New создает Store поверх backend
func New(backend storage.Backend, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend возвращает нижележащее хранилище
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// Get возвращает запись из любого пространства имен.
// Активные записи берутся из индекса, если он актуален
func (s *Store) Get(ctx context.Context, key string) (*models.Record, error) {
	s.mu.Lock()
	if s.validLocked() {
		if rec, ok := s.index[key]; ok {
			s.mu.Unlock()
			return rec.Clone(), nil
		}
	}
	s.mu.Unlock()

	return s.backend.Get(ctx, key)
}

// List возвращает активные записи, отсортированные по ключу
func (s *Store) List(ctx context.Context) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked() {
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	result := make([]*models.Record, 0, len(s.index))
	for _, rec := range s.index {
		result = append(result, rec.Clone())
	}
	sortByKey(result)
	return result, nil
}

// ListDeleted возвращает записи корзины, индекс не используется
func (s *Store) ListDeleted(ctx context.Context) ([]*models.Record, error) {
	records, err := s.backend.ListDeleted(ctx)
	if err != nil {
		return nil, err
	}
	sortByKey(records)
	return records, nil
}

// Put сохраняет запись как есть
func (s *Store) Put(ctx context.Context, record *models.Record) error {
	return s.mutate(func() error {
		return s.backend.Put(ctx, record)
	})
}

// SoftDelete перемещает запись в корзину
func (s *Store) SoftDelete(ctx context.Context, key string) error {
	return s.mutate(func() error {
		return s.backend.SoftDelete(ctx, key)
	})
}

// Restore возвращает запись из корзины
func (s *Store) Restore(ctx context.Context, key string) error {
	return s.mutate(func() error {
		return s.backend.Restore(ctx, key)
	})
}

// Purge окончательно удаляет запись из корзины
func (s *Store) Purge(ctx context.Context, key string) error {
	return s.mutate(func() error {
		return s.backend.Purge(ctx, key)
	})
}

// ExportAll возвращает архив активных записей
func (s *Store) ExportAll(ctx context.Context) ([]byte, error) {
	return s.backend.ExportAll(ctx)
}

// ImportAll импортирует архив и сбрасывает индекс
func (s *Store) ImportAll(ctx context.Context, blob []byte) (*storage.ImportResult, error) {
	var result *storage.ImportResult
	err := s.mutate(func() error {
		var err error
		result, err = s.backend.ImportAll(ctx, blob)
		return err
	})
	return result, err
}

// Invalidate сбрасывает индекс; следующий List перечитает хранилище
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = nil
}

// ChangedSince возвращает активные и удаленные записи с MutatedAt > since,
// отсортированные по ключу. Индекс не используется
func (s *Store) ChangedSince(ctx context.Context, since int64) ([]*models.Record, error) {
	active, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}
	deleted, err := s.backend.ListDeleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted records: %w", err)
	}

	changed := make([]*models.Record, 0, len(active)+len(deleted))
	for _, rec := range append(active, deleted...) {
		if rec.MutatedAt > since {
			changed = append(changed, rec)
		}
	}
	sortByKey(changed)
	return changed, nil
}

// Lookup возвращает запись или nil, если ключ неизвестен
func (s *Store) Lookup(ctx context.Context, key string) (*models.Record, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// индекс сбрасывается и при ошибке
	s.index = nil
	return fn()
}

func (s *Store) validLocked() bool {
	return s.index != nil && s.now().Sub(s.loaded) < s.ttl
}

func (s *Store) refreshLocked(ctx context.Context) error {
	records, err := s.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}

	index := make(map[string]*models.Record, len(records))
	for _, rec := range records {
		index[rec.Key] = rec
	}
	s.index = index
	s.loaded = s.now()

	s.logger.Debug("Record index refreshed", "count", len(index))
	return nil
}

func sortByKey(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}
