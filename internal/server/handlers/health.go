package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger *slog.Logger
	db     Pinger
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, db Pinger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		db:     db,
	}
}

// Health обрабатывает GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, h.logger, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable"})
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, api.HealthResponse{Status: "ok"})
}
