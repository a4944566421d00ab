package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// SyncLogsLimit максимальное количество событий в ответе GET /sync?logs=true
const SyncLogsLimit = 100

// maxSyncBody ограничение размера тела POST /sync
const maxSyncBody = 32 << 20

// SyncStorage определяет интерфейс хранилища для синхронизации
type SyncStorage interface {
	ApplyRecord(ctx context.Context, record *models.Record) (bool, error)
	RecordsSince(ctx context.Context, cursor int64) ([]*models.Record, int64, error)
	SaveSyncEvent(ctx context.Context, event *models.SyncEvent) error
	ListSyncEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error)
}

// SyncObserver получает счетчики каждого обработанного запроса синхронизации
type SyncObserver interface {
	ObserveSync(uploaded, downloaded, rejected int)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger   *slog.Logger
	storage  SyncStorage
	observer SyncObserver
	now      func() time.Time
}

// NewSyncHandler creates a new sync handler. observer may be nil
func NewSyncHandler(logger *slog.Logger, storage SyncStorage, observer SyncObserver) *SyncHandler {
	return &SyncHandler{
		logger:   logger,
		storage:  storage,
		observer: observer,
		now:      time.Now,
	}
}

// HandleSync обрабатывает POST /sync
// Применяет изменения клиента по LWW и возвращает записи, записанные на сервере
// после курсора lastSyncTime. Записи, совпадающие с присланными, клиенту не возвращаются
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client, _ := GetClient(ctx)

	var req api.SyncRequest

	// Парсим request body
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBody)).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode sync request", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("POST sync request",
		"client", client,
		"last_sync_time", req.LastSyncTime,
		"records_count", len(req.Records))

	summary := api.SyncSummary{}
	deletions := 0
	pushed := make(map[string]*models.Record, len(req.Records))

	// Применяем входящие записи от клиента
	for _, wire := range req.Records {
		record := models.RecordFromAPI(wire)
		pushed[record.Key] = record

		applied, err := h.storage.ApplyRecord(ctx, record)
		if err != nil {
			summary.ErrorCount++
			if errors.Is(err, storage.ErrInvalidRecord) {
				h.logger.Warn("Rejected invalid record", "key", record.Key, "error", err)
			} else {
				h.logger.Error("Failed to apply record", "key", record.Key, "error", err)
			}
			continue
		}

		if applied {
			summary.UploadCount++
			if record.Deleted {
				deletions++
			}
		}
	}

	// Получаем записи, записанные после курсора клиента
	records, cursor, err := h.storage.RecordsSince(ctx, req.LastSyncTime)
	if err != nil {
		h.logger.Error("Failed to get records since", "error", err, "last_sync_time", req.LastSyncTime)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	records = withoutEcho(records, pushed)
	summary.DownloadCount = len(records)

	status := string(models.StatusSuccess)
	if summary.ErrorCount > 0 {
		status = string(models.StatusPartial)
	}

	event := &models.SyncEvent{
		ID:             uuid.NewString(),
		Timestamp:      h.now().UnixMilli(),
		ClientIP:       ClientIP(r),
		UserAgent:      r.UserAgent(),
		ChangesCount:   summary.UploadCount,
		DeletionsCount: deletions,
		Status:         status,
	}
	if err := h.storage.SaveSyncEvent(ctx, event); err != nil {
		h.logger.Warn("Failed to save sync event", "error", err)
	}

	if h.observer != nil {
		h.observer.ObserveSync(summary.UploadCount, summary.DownloadCount, summary.ErrorCount)
	}

	writeJSON(w, h.logger, http.StatusOK, api.SyncResponse{
		Success: true,
		Merged:  models.RecordsToAPI(records),
		Summary: summary,
		Cursor:  cursor,
	})

	h.logger.Info("POST sync completed",
		"client", client,
		"uploaded", summary.UploadCount,
		"downloaded", summary.DownloadCount,
		"errors", summary.ErrorCount,
		"cursor", cursor)
}

// withoutEcho убирает записи, которые совпадают с присланными клиентом в этом запросе
func withoutEcho(records []*models.Record, pushed map[string]*models.Record) []*models.Record {
	if len(pushed) == 0 {
		return records
	}

	out := records[:0]
	for _, r := range records {
		if r.Equal(pushed[r.Key]) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HandleSyncLogs обрабатывает GET /sync?logs=true
// Возвращает последние события синхронизации, новые первыми
func (h *SyncHandler) HandleSyncLogs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("logs") != "true" {
		WriteError(w, http.StatusBadRequest, "unsupported query, use ?logs=true")
		return
	}

	events, err := h.storage.ListSyncEvents(r.Context(), SyncLogsLimit)
	if err != nil {
		h.logger.Error("Failed to list sync events", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logs := make([]api.SyncEvent, 0, len(events))
	for _, e := range events {
		logs = append(logs, api.SyncEvent{
			ID:             e.ID,
			Timestamp:      e.Timestamp,
			ClientIP:       e.ClientIP,
			UserAgent:      e.UserAgent,
			ChangesCount:   e.ChangesCount,
			DeletionsCount: e.DeletionsCount,
			Status:         e.Status,
		})
	}

	writeJSON(w, h.logger, http.StatusOK, api.SyncLogsResponse{Logs: logs})
}
