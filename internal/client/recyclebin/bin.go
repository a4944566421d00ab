// Package recyclebin управляет корзиной: восстановление, окончательное удаление
// и периодическая очистка записей старше срока хранения.
package recyclebin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// DefaultRetention срок хранения записей в корзине
const DefaultRetention = 30 * 24 * time.Hour

// Store операции хранилища, которые нужны корзине
type Store interface {
	ListDeleted(ctx context.Context) ([]*models.Record, error)
	Restore(ctx context.Context, key string) error
	Purge(ctx context.Context, key string) error
}

// Bin корзина удаленных записей
type Bin struct {
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration
}

// Option настраивает Bin
type Option func(*Bin)

// WithRetention задает срок хранения
func WithRetention(retention time.Duration) Option {
	return func(b *Bin) {
		b.retention = retention
	}
}

// WithNow задает источник времени. Используется для тестирования
func WithNow(now func() time.Time) Option {
	return func(b *Bin) {
		b.now = now
	}
}

// New создает корзину поверх store
func New(store Store, logger *slog.Logger, opts ...Option) *Bin {
	b := &Bin{
		store:     store,
		logger:    logger,
		now:       time.Now,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// List возвращает записи в корзине
func (b *Bin) List(ctx context.Context) ([]*models.Record, error) {
	return b.store.ListDeleted(ctx)
}

// Restore возвращает запись из корзины, MutatedAt обновляется хранилищем
func (b *Bin) Restore(ctx context.Context, key string) error {
	if err := b.store.Restore(ctx, key); err != nil {
		return fmt.Errorf("failed to restore %s: %w", key, err)
	}
	b.logger.Info("Record restored", "key", key)
	return nil
}

// Purge окончательно удаляет запись из корзины
func (b *Bin) Purge(ctx context.Context, key string) error {
	if err := b.store.Purge(ctx, key); err != nil {
		return fmt.Errorf("failed to purge %s: %w", key, err)
	}
	b.logger.Info("Record purged", "key", key)
	return nil
}

// Sweep удаляет записи, пролежавшие в корзине дольше срока хранения.
// Возвращает количество удаленных записей; ошибки отдельных записей объединяются
func (b *Bin) Sweep(ctx context.Context) (int, error) {
	records, err := b.store.ListDeleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recycle bin: %w", err)
	}

	cutoff := b.now().Add(-b.retention).UnixMilli()

	purged := 0
	var errs []error
	for _, rec := range records {
		if rec.MutatedAt >= cutoff {
			continue
		}
		if err := b.store.Purge(ctx, rec.Key); err != nil {
			// запись могла быть восстановлена параллельно
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to purge %s: %w", rec.Key, err))
			continue
		}
		purged++
	}

	if purged > 0 {
		b.logger.Info("Recycle bin swept", "purged", purged)
	}

	return purged, errors.Join(errs...)
}

// Run выполняет Sweep сразу и затем каждые interval до отмены ctx
func (b *Bin) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := b.Sweep(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn("Recycle bin sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
