// Package synclog хранит журнал проходов синхронизации фиксированного размера
// и умеет отменять изменения, примененные проходом.
package synclog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// DefaultCapacity количество хранимых записей журнала
const DefaultCapacity = 50

// Persister сохраняет журнал между запусками. Записи передаются от старых к новым
type Persister interface {
	LoadSyncLog(ctx context.Context) ([]*models.SyncLogEntry, error)
	SaveSyncLog(ctx context.Context, entries []*models.SyncLogEntry) error
}

// RecordStore операции с записями, которые нужны для отмены
type RecordStore interface {
	Get(ctx context.Context, key string) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
	SoftDelete(ctx context.Context, key string) error
}

// UndoResult итог отмены записи журнала
type UndoResult struct {
	Message       string
	RestoredCount int
	Success       bool
}

// Log кольцевой буфер записей журнала
type Log struct {
	store     RecordStore
	persister Persister
	clock     crdt.Clock
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	entries   []*models.SyncLogEntry // от старых к новым
	capacity  int
	mu        sync.Mutex
}

// Option настраивает Log
type Option func(*Log)

// WithCapacity задает размер журнала
func WithCapacity(capacity int) Option {
	return func(l *Log) {
		if capacity > 0 {
			l.capacity = capacity
		}
	}
}

// WithPersister включает сохранение журнала
func WithPersister(p Persister) Option {
	return func(l *Log) {
		l.persister = p
	}
}

// WithClock задает часы для MutatedAt записей, восстановленных отменой
func WithClock(clock crdt.Clock) Option {
	return func(l *Log) {
		l.clock = clock
	}
}

// WithNow задает источник времени для отметок журнала. Используется для тестирования
func WithNow(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Open создает журнал и загружает сохраненные записи, если задан Persister
func Open(ctx context.Context, store RecordStore, logger *slog.Logger, opts ...Option) (*Log, error) {
	l := &Log{
		store:    store,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = crdt.NewMutationClockWithSource(l.now)
	}

	if l.persister != nil {
		entries, err := l.persister.LoadSyncLog(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sync log: %w", err)
		}
		l.entries = entries
		l.trimLocked()
	}

	return l, nil
}

// Append добавляет запись, при переполнении вытесняя самую старую.
// Пустые ID и Timestamp заполняются
func (l *Log) Append(ctx context.Context, entry *models.SyncLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.appendLocked(ctx, entry)
}

// Entries возвращает копии записей, новые первыми
func (l *Log) Entries() []*models.SyncLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*models.SyncLogEntry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		result = append(result, l.entries[i].Clone())
	}
	return result
}

// Get возвращает копию записи по id
func (l *Log) Get(id string) (*models.SyncLogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.findLocked(id)
	if entry == nil {
		return nil, false
	}
	return entry.Clone(), true
}

// Undo отменяет изменения записи журнала:
// updated и deleted возвращают предыдущую версию записи со свежим MutatedAt,
// created переносит созданную запись в корзину.
// Ошибки не возвращаются, а попадают в Message
func (l *Log) Undo(ctx context.Context, id string) UndoResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.findLocked(id)
	switch {
	case entry == nil:
		return UndoResult{Message: fmt.Sprintf("sync log entry %s not found", id)}
	case entry.UndoneAt != 0:
		return UndoResult{Message: fmt.Sprintf("sync log entry %s was already undone", id)}
	case len(entry.Changes) == 0:
		return UndoResult{Message: fmt.Sprintf("sync log entry %s has no changes to undo", id)}
	}

	var (
		reversed []models.SyncChange
		failures []string
	)
	for _, change := range entry.Changes {
		rc, err := l.undoChange(ctx, change)
		if err != nil {
			l.logger.Warn("Failed to undo change", "entry_id", id, "key", change.Key, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", change.Key, err))
			continue
		}
		reversed = append(reversed, rc)
	}

	result := UndoResult{
		RestoredCount: len(reversed),
		Success:       len(failures) == 0,
	}
	result.Message = fmt.Sprintf("undid %d of %d changes", len(reversed), len(entry.Changes))
	if len(failures) > 0 {
		result.Message += "; failed: " + strings.Join(failures, "; ")
	}

	if len(reversed) == 0 {
		return result
	}

	entry.UndoneAt = l.now().UnixMilli()

	status := models.StatusSuccess
	if len(failures) > 0 {
		status = models.StatusPartial
	}
	audit := &models.SyncLogEntry{
		Direction: models.DirectionManual,
		Status:    status,
		Changes:   reversed,
		Summary:   models.SyncSummary{Errors: len(failures)},
		Error:     strings.Join(failures, "; "),
	}
	if err := l.appendLocked(ctx, audit); err != nil {
		l.logger.Warn("Failed to record undo in sync log", "entry_id", id, "error", err)
	}

	l.logger.Info("Sync log entry undone", "entry_id", id, "restored", len(reversed), "failed", len(failures))
	return result
}

// undoChange отменяет одно изменение и описывает обратное изменение
func (l *Log) undoChange(ctx context.Context, change models.SyncChange) (models.SyncChange, error) {
	current, err := l.store.Get(ctx, change.Key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.SyncChange{}, err
	}

	switch change.Action {
	case models.ActionCreated:
		if current == nil {
			return models.SyncChange{}, fmt.Errorf("record no longer exists: %w", storage.ErrNotFound)
		}
		if err := l.store.SoftDelete(ctx, change.Key); err != nil {
			return models.SyncChange{}, err
		}
		deleted, _ := l.store.Get(ctx, change.Key)
		return models.SyncChange{
			Key:              change.Key,
			Action:           models.ActionDeleted,
			PreviousSnapshot: current,
			NewSnapshot:      deleted,
		}, nil

	case models.ActionUpdated, models.ActionDeleted:
		if change.PreviousSnapshot == nil {
			return models.SyncChange{}, fmt.Errorf("%w: change has no previous snapshot", storage.ErrInvalidData)
		}

		restored := change.PreviousSnapshot.Clone()
		floor := restored.MutatedAt
		if current != nil && current.MutatedAt > floor {
			floor = current.MutatedAt
		}
		restored.MutatedAt = crdt.NextAfter(l.clock, floor)

		if err := l.store.Put(ctx, restored); err != nil {
			return models.SyncChange{}, err
		}

		action := models.ActionUpdated
		if current == nil {
			action = models.ActionCreated
		}
		return models.SyncChange{
			Key:              change.Key,
			Action:           action,
			PreviousSnapshot: current,
			NewSnapshot:      restored,
		}, nil
	}

	return models.SyncChange{}, fmt.Errorf("%w: unknown action %v", storage.ErrInvalidData, change.Action)
}

func (l *Log) appendLocked(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.ID == "" {
		entry.ID = l.newID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = l.now().UnixMilli()
	}
	if entry.Changes == nil {
		entry.Changes = []models.SyncChange{}
	}

	l.entries = append(l.entries, entry.Clone())
	l.trimLocked()

	return l.persistLocked(ctx)
}

func (l *Log) findLocked(id string) *models.SyncLogEntry {
	for _, e := range l.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (l *Log) trimLocked() {
	if over := len(l.entries) - l.capacity; over > 0 {
		// копия, чтобы вытесненные записи не удерживались массивом
		l.entries = append([]*models.SyncLogEntry(nil), l.entries[over:]...)
	}
}

func (l *Log) persistLocked(ctx context.Context) error {
	if l.persister == nil {
		return nil
	}
	if err := l.persister.SaveSyncLog(ctx, l.entries); err != nil {
		return fmt.Errorf("failed to persist sync log: %w", err)
	}
	return nil
}
