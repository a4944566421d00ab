package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

// ClientKey ключ для хранения идентификатора аутентифицированного клиента в контексте
const ClientKey contextKey = "client"

// WithClient добавляет идентификатор клиента в контекст
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ClientKey, client)
}

// GetClient извлекает идентификатор клиента из контекста запроса
func GetClient(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(ClientKey).(string)
	return client, ok
}

// writeJSON пишет JSON ответ с указанным статусом
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// WriteError пишет ответ с ошибкой в формате {error}
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}

// ClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func ClientIP(r *http.Request) string {
	// Проверяем X-Forwarded-For (для прокси/load balancers)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Берем первый IP из списка (реальный клиент)
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Проверяем X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Используем RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
