package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/handlers"
)

// Recovery перехватывает панику обработчика, логирует стек и отвечает 500,
// если ответ еще не начат. Паника с http.ErrAbortHandler пробрасывается
// дальше: ей обработчик обрывает соединение
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrapWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"client", clientOf(r.Context()),
					"remote_addr", handlers.ClientIP(r),
					"stack", string(debug.Stack()),
				)

				// Заголовки уже ушли клиенту, второй статус не отправить
				if wrapped.wroteHeader {
					return
				}
				handlers.WriteError(wrapped, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
