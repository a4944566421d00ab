package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/archive"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// maxImportBody ограничение размера загружаемого архива
const maxImportBody = 64 << 20

// RecordsHandler обрабатывает CRUD запросы к записям
type RecordsHandler struct {
	logger  *slog.Logger
	storage storage.RecordStorage
}

// NewRecordsHandler создает новый handler записей
func NewRecordsHandler(logger *slog.Logger, storage storage.RecordStorage) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		storage: storage,
	}
}

// List обрабатывает GET /records[?deleted=true]
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	deleted := r.URL.Query().Get("deleted") == "true"

	records, err := h.storage.ListRecords(r.Context(), deleted)
	if err != nil {
		h.writeStorageError(w, "list records", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, models.RecordsToAPI(records))
}

// Get обрабатывает GET /records/{key}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.storage.GetRecord(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeStorageError(w, "get record", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, record.ToAPI())
}

// Put обрабатывает POST /records (upsert по key)
func (h *RecordsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var wire api.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBody)).Decode(&wire); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := models.RecordFromAPI(wire)
	if err := h.storage.PutRecord(r.Context(), record); err != nil {
		h.writeStorageError(w, "put record", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, record.ToAPI())
}

// Delete обрабатывает DELETE /records/{key}[?purge=true]
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var err error
	if r.URL.Query().Get("purge") == "true" {
		err = h.storage.PurgeRecord(r.Context(), key)
	} else {
		err = h.storage.SoftDeleteRecord(r.Context(), key)
	}
	if err != nil {
		h.writeStorageError(w, "delete record", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restore обрабатывает POST /records/{key}/restore
func (h *RecordsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.RestoreRecord(r.Context(), r.PathValue("key")); err != nil {
		h.writeStorageError(w, "restore record", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Export обрабатывает GET /records/export
func (h *RecordsHandler) Export(w http.ResponseWriter, r *http.Request) {
	records, err := h.storage.ListRecords(r.Context(), false)
	if err != nil {
		h.writeStorageError(w, "list records for export", err)
		return
	}

	blob, err := archive.Encode(records)
	if err != nil {
		h.writeStorageError(w, "encode archive", err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="records.zip"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob); err != nil {
		h.logger.Error("Failed to write archive", "error", err)
	}
}

// Import обрабатывает POST /records/import.
// Записи сохраняют MutatedAt из архива: устройства получат их по курсору,
// но более новые версии на устройствах не перезаписываются
func (h *RecordsHandler) Import(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read archive")
		return
	}

	result, err := archive.Import(r.Context(), blob, importTarget{storage: h.storage}, nil)
	if err != nil {
		if errors.Is(err, archive.ErrMalformedArchive) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeStorageError(w, "import archive", err)
		return
	}

	h.logger.Info("Archive imported",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", len(result.Errors))

	writeJSON(w, h.logger, http.StatusOK, api.ImportResponse{
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
	})
}

// writeStorageError переводит ошибку хранилища в HTTP ответ
func (h *RecordsHandler) writeStorageError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidRecord):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Storage operation failed", "op", op, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// importTarget адаптирует RecordStorage к archive.Target
type importTarget struct {
	storage storage.RecordStorage
}

func (t importTarget) Lookup(ctx context.Context, key string) (*models.Record, bool, error) {
	record, err := t.storage.GetRecord(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

func (t importTarget) Put(ctx context.Context, record *models.Record) error {
	return t.storage.PutRecord(ctx, record)
}
