package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crypto"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// logEntries разбирает JSON строки лога
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}
	return entries
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		wantRoute string
		wantLevel string
		status    int
	}{
		{name: "list records", method: http.MethodGet, path: "/records", status: http.StatusOK, wantRoute: "GET /records", wantLevel: "INFO"},
		{name: "missing record", method: http.MethodGet, path: "/records/missing", status: http.StatusNotFound, wantRoute: "GET /records/{key}", wantLevel: "WARN"},
		{name: "sync failure", method: http.MethodPost, path: "/sync", status: http.StatusInternalServerError, wantRoute: "POST /sync", wantLevel: "ERROR"},
		{name: "unknown route", method: http.MethodGet, path: "/nothing", status: http.StatusNotFound, wantRoute: "unmatched", wantLevel: "WARN"},
	}

	reply := func(status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("body"))
		}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.Handle("GET /records", reply(http.StatusOK))
			mux.Handle("GET /records/{key}", reply(http.StatusNotFound))
			mux.Handle("POST /sync", reply(http.StatusInternalServerError))

			var buf bytes.Buffer
			handler := Logging(newJSONLogger(&buf))(mux)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.168.1.1:12345"
			req.Header.Set("User-Agent", "TestAgent/1.0")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)

			entries := logEntries(t, &buf)
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, "HTTP request", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantRoute, entry["route"])
			assert.Equal(t, tt.path, entry["path"])
			assert.Equal(t, "192.168.1.1", entry["remote_addr"])
			assert.Equal(t, "TestAgent/1.0", entry["user_agent"])
			assert.EqualValues(t, tt.status, entry["status"])
		})
	}
}

func TestLogging_ResponseSize(t *testing.T) {
	var buf bytes.Buffer
	handler := Logging(newJSONLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Hello, "))
		_, _ = w.Write([]byte("World!"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records/export", nil))

	entries := logEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 13, entries[0]["bytes_written"])
	assert.EqualValues(t, http.StatusOK, entries[0]["status"])
	assert.Contains(t, entries[0], "duration_ms")
}

func TestLogging_ClientFromAuth(t *testing.T) {
	hash, err := crypto.HashAPIKey("secret", 4)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := newJSONLogger(&buf)

	protected := AuthMiddleware(logger, NewAuthenticator(hash, nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler := Logging(logger)(protected)

	tests := []struct {
		name       string
		apiKey     string
		wantClient string
	}{
		{name: "authenticated", apiKey: "secret", wantClient: ClientAPIKey},
		{name: "rejected", apiKey: "wrong", wantClient: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			req := httptest.NewRequest(http.MethodGet, "/records", nil)
			req.Header.Set(api.HeaderAPIKey, tt.apiKey)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var request map[string]any
			for _, entry := range logEntries(t, &buf) {
				if entry["msg"] == "HTTP request" {
					request = entry
				}
			}
			require.NotNil(t, request)
			assert.Equal(t, tt.wantClient, request["client"])
			assert.NotContains(t, request, "x-api-key")
		})
	}
}

func TestLogging_Skip(t *testing.T) {
	var buf bytes.Buffer
	handler := Logging(newJSONLogger(&buf), "/health", "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	tests := []struct {
		path    string
		wantLog bool
	}{
		{path: "/health", wantLog: false},
		{path: "/metrics", wantLog: false},
		{path: "/records", wantLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name        string
		write       func(rw *responseWriter)
		wantStatus  int
		wantWritten int64
	}{
		{
			name:       "explicit status",
			write:      func(rw *responseWriter) { rw.WriteHeader(http.StatusCreated) },
			wantStatus: http.StatusCreated,
		},
		{
			name: "implicit 200 on write",
			write: func(rw *responseWriter) {
				_, _ = rw.Write([]byte("test"))
			},
			wantStatus:  http.StatusOK,
			wantWritten: 4,
		},
		{
			name: "second status is ignored",
			write: func(rw *responseWriter) {
				rw.WriteHeader(http.StatusAccepted)
				rw.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := wrapWriter(httptest.NewRecorder())
			assert.False(t, rw.wroteHeader)

			tt.write(rw)

			assert.True(t, rw.wroteHeader)
			assert.Equal(t, tt.wantStatus, rw.statusCode)
			assert.Equal(t, tt.wantWritten, rw.written)
		})
	}
}

func TestWrapWriter_ReusesWrapped(t *testing.T) {
	rw := wrapWriter(httptest.NewRecorder())
	assert.Same(t, rw, wrapWriter(rw))

	rec := httptest.NewRecorder()
	assert.Same(t, rec, wrapWriter(rec).Unwrap())
}
