package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage/sqlite"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func wireSpool(key string, mutatedAt int64, color string) api.Record {
	return api.Record{
		Key:       key,
		MutatedAt: mutatedAt,
		Fields:    map[string]any{"type": "PLA", "color": color},
	}
}

// recordingObserver запоминает последние переданные счетчики
type recordingObserver struct {
	uploaded, downloaded, rejected int
	calls                          int
}

func (o *recordingObserver) ObserveSync(uploaded, downloaded, rejected int) {
	o.calls++
	o.uploaded, o.downloaded, o.rejected = uploaded, downloaded, rejected
}

func postSync(t *testing.T, h *SyncHandler, req api.SyncRequest) (*httptest.ResponseRecorder, api.SyncResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body))
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("User-Agent", "filamentdb-test")
	r = r.WithContext(WithClient(r.Context(), "device-1"))
	w := httptest.NewRecorder()

	h.HandleSync(w, r)

	var resp api.SyncResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w, resp
}

func TestSyncHandler_HandleSync_InvalidBody(t *testing.T) {
	h := NewSyncHandler(setupTestLogger(), setupTestStorage(t), nil)

	r := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.HandleSync(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestSyncHandler_HandleSync(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	observer := &recordingObserver{}
	h := NewSyncHandler(setupTestLogger(), store, observer)

	// сервер уже знает две записи
	require.NoError(t, store.PutRecord(ctx, models.RecordFromAPI(wireSpool("shared", 100, "red"))))
	require.NoError(t, store.PutRecord(ctx, models.RecordFromAPI(wireSpool("server-only", 300, "blue"))))

	w, resp := postSync(t, h, api.SyncRequest{
		Records: []api.Record{
			wireSpool("shared", 250, "green"),
			wireSpool("client-only", 260, "white"),
			{Key: "broken", MutatedAt: 270, Fields: map[string]any{}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Summary.UploadCount)
	assert.Equal(t, 1, resp.Summary.ErrorCount)
	// принятые записи клиента не возвращаются ему обратно
	assert.Equal(t, 1, resp.Summary.DownloadCount)
	require.Len(t, resp.Merged, 1)
	assert.Equal(t, "server-only", resp.Merged[0].Key)
	assert.Equal(t, int64(4), resp.Cursor)

	shared, err := store.GetRecord(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "green", shared.Color())

	assert.Equal(t, 1, observer.calls)
	assert.Equal(t, 2, observer.uploaded)
	assert.Equal(t, 1, observer.rejected)

	events, err := store.ListSyncEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(models.StatusPartial), events[0].Status)
	assert.Equal(t, "10.0.0.7", events[0].ClientIP)
	assert.Equal(t, "filamentdb-test", events[0].UserAgent)
	assert.Equal(t, 2, events[0].ChangesCount)
	assert.NotEmpty(t, events[0].ID)
}

func TestSyncHandler_HandleSync_Idempotent(t *testing.T) {
	store := setupTestStorage(t)
	h := NewSyncHandler(setupTestLogger(), store, nil)

	req := api.SyncRequest{
		Records: []api.Record{
			wireSpool("a", 10, "red"),
			{Key: "b", MutatedAt: 11, Deleted: true, Fields: map[string]any{"type": "PETG"}},
		},
	}

	_, first := postSync(t, h, req)
	assert.Equal(t, 2, first.Summary.UploadCount)
	assert.Equal(t, 0, first.Summary.DownloadCount)

	_, second := postSync(t, h, req)
	assert.Equal(t, 0, second.Summary.UploadCount)
	assert.Equal(t, 0, second.Summary.DownloadCount)
	assert.Equal(t, first.Cursor, second.Cursor)

	events, err := store.ListSyncEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// новые первыми
	assert.Equal(t, 0, events[0].ChangesCount)
	assert.Equal(t, 2, events[1].ChangesCount)
	assert.Equal(t, 1, events[1].DeletionsCount)
	assert.Equal(t, string(models.StatusSuccess), events[1].Status)
}

func TestSyncHandler_HandleSync_OlderRecordLoses(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	h := NewSyncHandler(setupTestLogger(), store, nil)

	require.NoError(t, store.PutRecord(ctx, models.RecordFromAPI(wireSpool("x", 500, "red"))))

	_, resp := postSync(t, h, api.SyncRequest{
		LastSyncTime: 0,
		Records:      []api.Record{wireSpool("x", 400, "blue")},
	})

	assert.Equal(t, 0, resp.Summary.UploadCount)
	require.Len(t, resp.Merged, 1)
	assert.Equal(t, "red", resp.Merged[0].Fields["color"])
	assert.Equal(t, int64(500), resp.Merged[0].MutatedAt)
}

// failingSyncStorage возвращает ошибку на выборке изменений
type failingSyncStorage struct {
	SyncStorage
}

func (failingSyncStorage) RecordsSince(context.Context, int64) ([]*models.Record, int64, error) {
	return nil, 0, errors.New("database is locked")
}

func TestSyncHandler_HandleSync_CursorIgnoresClocks(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	h := NewSyncHandler(setupTestLogger(), store, nil)

	// устройство B синхронизируется и получает курсор
	_, b := postSync(t, h, api.SyncRequest{Records: []api.Record{wireSpool("b-1", 5000, "red")}})
	require.Equal(t, 0, b.Summary.DownloadCount)

	// устройство A присылает правку, сделанную офлайн задолго до синхронизации B
	_, a := postSync(t, h, api.SyncRequest{Records: []api.Record{wireSpool("a-1", 10, "blue")}})
	require.Equal(t, 1, a.Summary.UploadCount)

	_, next := postSync(t, h, api.SyncRequest{LastSyncTime: b.Cursor})
	require.Len(t, next.Merged, 1)
	assert.Equal(t, "a-1", next.Merged[0].Key)
	assert.Greater(t, next.Cursor, b.Cursor)

	stored, err := store.GetRecord(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.MutatedAt)
}

func TestSyncHandler_HandleSync_StorageError(t *testing.T) {
	h := NewSyncHandler(setupTestLogger(), failingSyncStorage{}, nil)

	w, _ := postSync(t, h, api.SyncRequest{})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "locked")
}

func TestSyncHandler_HandleSyncLogs(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	h := NewSyncHandler(setupTestLogger(), store, nil)

	for i := 0; i < SyncLogsLimit+5; i++ {
		require.NoError(t, store.SaveSyncEvent(ctx, &models.SyncEvent{
			ID:        time.UnixMilli(int64(i)).String(),
			Timestamp: int64(i),
			Status:    string(models.StatusSuccess),
		}))
	}

	t.Run("requires logs query", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/sync", nil)
		w := httptest.NewRecorder()
		h.HandleSyncLogs(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns newest events first", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/sync?logs=true", nil)
		w := httptest.NewRecorder()
		h.HandleSyncLogs(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		var resp api.SyncLogsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Logs, SyncLogsLimit)
		assert.Equal(t, int64(SyncLogsLimit+4), resp.Logs[0].Timestamp)
		assert.Greater(t, resp.Logs[0].Timestamp, resp.Logs[1].Timestamp)
	})
}
