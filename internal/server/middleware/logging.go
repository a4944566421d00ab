package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/handlers"
)

// requestInfo заполняется по ходу обработки запроса и читается логированием
// после ответа. Auth записывает сюда клиента, потому что создает новый *http.Request
type requestInfo struct {
	client string
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// recordClient сохраняет клиента для строки лога запроса
func recordClient(ctx context.Context, client string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.client = client
	}
}

func clientOf(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info.client
	}
	return ""
}

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap дает http.ResponseController доступ к исходному writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging пишет одну строку на запрос: шаблон маршрута, клиент, статус,
// длительность и размер ответа. Уровень зависит от статуса.
// Запросы к skip путям (частые опросы /health и /metrics) не логируются.
// Заголовки аутентификации не логируются
func Logging(logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, path := range skip {
		skipped[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ctx, info := withRequestInfo(r.Context())
			r = r.WithContext(ctx)
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			// ServeMux выставляет Pattern на этом же запросе
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}

			logger.Log(ctx, level, "HTTP request",
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"client", info.client,
				"remote_addr", handlers.ClientIP(r),
				"user_agent", r.UserAgent(),
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", wrapped.written,
			)
		})
	}
}
