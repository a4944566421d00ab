// Package sync выполняет проходы синхронизации локального хранилища с сервером.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/api"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	pkgapi "github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

//go:generate moq -out apiclient_mock.go . APIClient

var (
	// ErrSyncInProgress возвращается, если проход уже выполняется
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncRejected возвращается, если сервер ответил success=false
	ErrSyncRejected = errors.New("server rejected sync")
)

// APIClient часть HTTP клиента, которая нужна движку
type APIClient interface {
	Sync(ctx context.Context, req pkgapi.SyncRequest) (*pkgapi.SyncResponse, error)
	SyncLogs(ctx context.Context) ([]pkgapi.SyncEvent, error)
	BaseURL() string
}

// RecordStore локальное хранилище записей
type RecordStore interface {
	ChangedSince(ctx context.Context, since int64) ([]*models.Record, error)
	Get(ctx context.Context, key string) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
}

// Journal журнал проходов синхронизации
type Journal interface {
	Append(ctx context.Context, entry *models.SyncLogEntry) error
}

// Clock часы устройства, учитывающие время чужих изменений
type Clock interface {
	crdt.Clock
	Observe(remoteTimestamp int64)
}

// State состояние движка
type State int32

const (
	StateIdle State = iota
	StateSyncing
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Result итог одного прохода
type Result struct {
	Status     models.SyncStatus
	Summary    string
	LogEntryID string
	Uploaded   int // записи, принятые сервером
	Downloaded int // записи, полученные от сервера
	Errors     int // ошибки отдельных записей на клиенте и сервере
}

// Engine выполняет проходы синхронизации. Одновременно выполняется не больше одного прохода
type Engine struct {
	client   APIClient
	store    RecordStore
	metadata storage.MetadataStorage
	journal  Journal
	clock    Clock
	logger   *slog.Logger
	now      func() time.Time
	trigger  chan struct{}
	state    atomic.Int32
	last     atomic.Int32
}

// Option настраивает Engine
type Option func(*Engine)

// WithClock задает часы устройства
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithNow задает источник времени начала прохода. Используется для тестирования
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine создает движок синхронизации
func NewEngine(client APIClient, store RecordStore, metadata storage.MetadataStorage, journal Journal, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		store:    store,
		metadata: metadata,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = crdt.NewMutationClockWithSource(e.now)
	}
	return e
}

// State возвращает текущее состояние: StateSyncing во время прохода, иначе StateIdle
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastOutcome возвращает итоговое состояние последнего прохода:
// StateSuccess, StateError или StateIdle, если проходов еще не было
func (e *Engine) LastOutcome() State {
	return State(e.last.Load())
}

// Run выполняет один проход.
// Если проход уже идет, сразу возвращает ErrSyncInProgress.
// Result возвращается и вместе с ошибкой, если проход был записан в журнал
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	for {
		cur := e.state.Load()
		if State(cur) == StateSyncing {
			return nil, ErrSyncInProgress
		}
		if e.state.CompareAndSwap(cur, int32(StateSyncing)) {
			break
		}
	}

	result, err := e.run(ctx)

	final := StateSuccess
	if err != nil || result.Status == models.StatusFailed {
		final = StateError
	}
	e.last.Store(int32(final))
	e.state.Store(int32(StateIdle))

	return result, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	start := e.now().UnixMilli()

	lastSyncTime, err := e.metadata.GetLastSyncTimestamp(ctx)
	if err != nil {
		e.logger.Warn("Failed to get last sync timestamp, using 0", "error", err)
		lastSyncTime = 0
	}
	cursor, err := e.metadata.GetServerCursor(ctx)
	if err != nil {
		e.logger.Warn("Failed to get server cursor, using 0", "error", err)
		cursor = 0
	}

	e.logger.Info("Starting synchronization",
		"last_sync_time", lastSyncTime,
		"cursor", cursor,
		"remote", e.client.BaseURL())

	// Шаг 1: локальные изменения после последней синхронизации
	outgoing, err := e.store.ChangedSince(ctx, lastSyncTime)
	if err != nil {
		return e.fail(ctx, fmt.Errorf("failed to collect local changes: %w", err))
	}

	e.logger.Info("Collected local changes", "count", len(outgoing))

	// Шаг 2-3: обмен с сервером
	resp, err := e.client.Sync(ctx, pkgapi.SyncRequest{
		Records:      models.RecordsToAPI(outgoing),
		LastSyncTime: cursor,
	})
	if err != nil {
		return e.fail(ctx, fmt.Errorf("sync request failed: %w", err))
	}
	if !resp.Success {
		return e.fail(ctx, ErrSyncRejected)
	}

	incoming := withoutEcho(models.RecordsFromAPI(resp.Merged), outgoing)

	e.logger.Info("Received server response",
		"merged", len(resp.Merged),
		"incoming", len(incoming),
		"uploaded", resp.Summary.UploadCount,
		"server_errors", resp.Summary.ErrorCount,
		"cursor", resp.Cursor)

	// Шаг 4-5: слияние входящих записей
	e.clock.Observe(crdt.MaxMutatedAt(incoming))
	changes, failed, applyErr := e.applyIncoming(ctx, incoming)

	result := &Result{
		Uploaded:   resp.Summary.UploadCount,
		Downloaded: len(incoming),
		Errors:     failed + resp.Summary.ErrorCount,
	}

	switch {
	case applyErr != nil:
		result.Status = models.StatusFailed
	case result.Errors > 0:
		result.Status = models.StatusPartial
	default:
		result.Status = models.StatusSuccess
	}

	// Шаг 6: запись журнала
	entry := &models.SyncLogEntry{
		Direction:      direction(result.Uploaded, result.Downloaded),
		Status:         result.Status,
		RemoteEndpoint: e.client.BaseURL(),
		Changes:        changes,
		Summary: models.SyncSummary{
			Uploaded:   result.Uploaded,
			Downloaded: result.Downloaded,
			Errors:     result.Errors,
		},
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	}
	result.LogEntryID = e.appendLog(ctx, entry)

	// Шаг 7: watermark и курсор сдвигаются только после прохода без ошибок.
	// Изменения с MutatedAt == start могли появиться после сбора, поэтому
	// watermark на единицу меньше начала прохода
	if result.Status == models.StatusSuccess {
		if err := e.metadata.SaveLastSyncTimestamp(ctx, start-1); err != nil {
			e.logger.Warn("Failed to save last sync timestamp", "error", err)
		}
		if err := e.metadata.SaveServerCursor(ctx, resp.Cursor); err != nil {
			e.logger.Warn("Failed to save server cursor", "error", err)
		}
	}

	result.Summary = fmt.Sprintf("uploaded %d, downloaded %d, applied %d, errors %d",
		result.Uploaded, result.Downloaded, len(changes), result.Errors)
	if applyErr != nil {
		result.Summary = fmt.Sprintf("sync aborted: %v (%s)", applyErr, result.Summary)
	}

	e.logger.Info("Synchronization completed",
		"status", result.Status,
		"uploaded", result.Uploaded,
		"downloaded", result.Downloaded,
		"applied", len(changes),
		"errors", result.Errors)

	return result, applyErr
}

// applyIncoming сливает записи сервера с локальными по LWW.
// Ошибки отдельных записей считаются и не прерывают проход; отмена ctx прерывает
func (e *Engine) applyIncoming(ctx context.Context, incoming []*models.Record) ([]models.SyncChange, int, error) {
	changes := make([]models.SyncChange, 0, len(incoming))
	failed := 0

	for _, remote := range incoming {
		if err := ctx.Err(); err != nil {
			return changes, failed, err
		}

		change, applied, err := e.mergeRecord(ctx, remote)
		if err != nil {
			e.logger.Warn("Failed to merge record", "key", remote.Key, "error", err)
			failed++
			continue
		}
		if applied {
			changes = append(changes, change)
		}
	}

	return changes, failed, nil
}

// mergeRecord применяет одну входящую запись.
// Возвращает applied=false, если локальная версия не изменилась
func (e *Engine) mergeRecord(ctx context.Context, remote *models.Record) (models.SyncChange, bool, error) {
	local, err := e.store.Get(ctx, remote.Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return models.SyncChange{}, false, fmt.Errorf("failed to get local record: %w", err)
		}
		local = nil
	}

	resolved := crdt.Merge(local, remote)
	if resolved.Equal(local) {
		e.logger.Debug("Skipping record (local is current)", "key", remote.Key, "mutated_at", remote.MutatedAt)
		return models.SyncChange{}, false, nil
	}

	if err := e.store.Put(ctx, resolved); err != nil {
		return models.SyncChange{}, false, fmt.Errorf("failed to persist record: %w", err)
	}

	return models.SyncChange{
		Key:              resolved.Key,
		Action:           classify(local, resolved),
		PreviousSnapshot: local,
		NewSnapshot:      resolved,
	}, true, nil
}

// fail записывает неудачный проход в журнал и возвращает ошибку
func (e *Engine) fail(ctx context.Context, err error) (*Result, error) {
	e.logger.Error("Synchronization failed", "error", err)

	result := &Result{
		Status:  models.StatusFailed,
		Summary: fmt.Sprintf("sync failed: %v", err),
	}
	result.LogEntryID = e.appendLog(ctx, &models.SyncLogEntry{
		Direction:      models.DirectionOutgoing,
		Status:         models.StatusFailed,
		RemoteEndpoint: e.client.BaseURL(),
		Error:          err.Error(),
	})

	return result, err
}

func (e *Engine) appendLog(ctx context.Context, entry *models.SyncLogEntry) string {
	if e.journal == nil {
		return ""
	}
	// журнал пишется и после отмены прохода
	if err := e.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("Failed to append sync log entry", "error", err)
	}
	return entry.ID
}

// Pending возвращает количество локальных изменений после последней успешной синхронизации
func (e *Engine) Pending(ctx context.Context) (int, error) {
	lastSyncTime, err := e.metadata.GetLastSyncTimestamp(ctx)
	if err != nil {
		e.logger.Debug("No last sync timestamp found, using 0", "error", err)
		lastSyncTime = 0
	}

	records, err := e.store.ChangedSince(ctx, lastSyncTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending records: %w", err)
	}

	return len(records), nil
}

// RemoteLogs возвращает журнал синхронизаций сервера
func (e *Engine) RemoteLogs(ctx context.Context) ([]pkgapi.SyncEvent, error) {
	events, err := e.client.SyncLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get remote sync logs: %w", err)
	}
	return events, nil
}

// Trigger запрашивает внеочередной проход в Loop. Не блокируется
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Loop выполняет проход сразу, затем по тикеру и по Trigger до отмены ctx.
// Ошибки аутентификации останавливают цикл и возвращаются,
// остальные ошибки логируются и повторяются на следующем тике
func (e *Engine) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := e.Run(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrMissingCredentials):
			return err
		case errors.Is(err, ErrSyncInProgress):
			e.logger.Debug("Skipping tick, sync in progress")
		case storage.IsRetryable(err):
			e.logger.Warn("Sync failed, will retry", "error", err, "interval", interval)
		default:
			e.logger.Error("Sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.trigger:
		}
	}
}

// withoutEcho убирает из ответа сервера записи, совпадающие с отправленными в этом проходе
func withoutEcho(incoming, sent []*models.Record) []*models.Record {
	if len(sent) == 0 {
		return incoming
	}

	byKey := make(map[string]*models.Record, len(sent))
	for _, r := range sent {
		byKey[r.Key] = r
	}

	out := make([]*models.Record, 0, len(incoming))
	for _, r := range incoming {
		if r.Equal(byKey[r.Key]) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// classify определяет действие по состоянию до и после слияния
func classify(previous, next *models.Record) models.SyncAction {
	switch {
	case previous == nil:
		return models.ActionCreated
	case !previous.Deleted && next.Deleted:
		return models.ActionDeleted
	default:
		return models.ActionUpdated
	}
}

// direction выбирает преобладающее направление прохода
func direction(uploaded, downloaded int) models.SyncDirection {
	if downloaded > 0 && downloaded >= uploaded {
		return models.DirectionIncoming
	}
	return models.DirectionOutgoing
}
