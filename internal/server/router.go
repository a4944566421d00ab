// Package server собирает HTTP сервер синхронизации: маршруты, middleware и жизненный цикл.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/handlers"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/metrics"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/middleware"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage"
)

// Storage хранилище, которое нужно серверу
type Storage interface {
	storage.RecordStorage
	storage.SyncEventStorage
}

// RateLimit лимиты запросов за окно
type RateLimit struct {
	Rate       int           // общий лимит на IP
	Window     time.Duration // окно лимита
	SyncRate   int           // лимит /sync на устройство, 0 означает Rate
	ImportRate int           // лимит /records/import на устройство, 0 означает Rate
}

// DefaultRateLimit лимиты по умолчанию
var DefaultRateLimit = RateLimit{
	Rate:       600,
	Window:     time.Minute,
	SyncRate:   120,
	ImportRate: 10,
}

// Deps зависимости роутера
type Deps struct {
	Logger    *slog.Logger
	Storage   Storage
	DB        handlers.Pinger // nil отключает проверку БД в /health
	Auth      *middleware.Authenticator
	Metrics   *metrics.Metrics // nil отключает /metrics
	RateLimit RateLimit
}

// Router http.Handler со всеми маршрутами сервера и лимитерами запросов
type Router struct {
	handler  http.Handler
	limiters []*middleware.Limiter
}

// NewRouter собирает маршруты сервера.
// /health и /metrics доступны без аутентификации.
// Общий лимит считается по IP до аутентификации, лимиты /sync и
// /records/import считаются по устройству после нее
func NewRouter(deps Deps) *Router {
	logger := deps.Logger

	var observer handlers.SyncObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	healthHandler := handlers.NewHealthHandler(logger, deps.DB)
	syncHandler := handlers.NewSyncHandler(logger, deps.Storage, observer)
	recordsHandler := handlers.NewRecordsHandler(logger, deps.Storage)

	limits := deps.RateLimit
	if limits.Rate <= 0 {
		limits = DefaultRateLimit
	}

	rt := &Router{}
	newLimiter := func(rate int, key middleware.KeyFunc) *middleware.Limiter {
		if rate <= 0 {
			rate = limits.Rate
		}
		l := middleware.NewLimiter(middleware.Limit{Rate: rate, Window: limits.Window}, key, logger)
		rt.limiters = append(rt.limiters, l)
		return l
	}

	ipLimiter := newLimiter(limits.Rate, middleware.ByIP)
	syncLimiter := newLimiter(limits.SyncRate, middleware.ByDevice)
	importLimiter := newLimiter(limits.ImportRate, middleware.ByDevice)

	auth := middleware.AuthMiddleware(logger, deps.Auth)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}
	limited := func(l *middleware.Limiter, h http.HandlerFunc) http.Handler {
		return auth(l.Middleware(h))
	}

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", healthHandler.Health)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	// Protected endpoints
	mux.Handle("POST /sync", limited(syncLimiter, syncHandler.HandleSync))
	mux.Handle("GET /sync", limited(syncLimiter, syncHandler.HandleSyncLogs))

	mux.Handle("GET /records", protected(recordsHandler.List))
	mux.Handle("POST /records", protected(recordsHandler.Put))
	mux.Handle("GET /records/export", protected(recordsHandler.Export))
	mux.Handle("POST /records/import", limited(importLimiter, recordsHandler.Import))
	mux.Handle("GET /records/{key}", protected(recordsHandler.Get))
	mux.Handle("DELETE /records/{key}", protected(recordsHandler.Delete))
	mux.Handle("POST /records/{key}/restore", protected(recordsHandler.Restore))

	var handler http.Handler = mux
	// Метрики оборачивают mux напрямую: ServeMux выставляет r.Pattern на этом же запросе
	if deps.Metrics != nil {
		handler = deps.Metrics.Middleware(handler)
	}
	handler = ipLimiter.Middleware(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger, "/health", "/metrics")(handler)

	rt.handler = handler
	return rt
}

// ServeHTTP implements http.Handler
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Close останавливает фоновую очистку лимитеров. Повторный вызов безопасен
func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}

// Server HTTP сервер с корректной остановкой
type Server struct {
	httpServer      *http.Server
	router          *Router
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New создает сервер на addr
func New(addr string, router *Router, logger *slog.Logger) *Server {
	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}
}

// Run обслуживает запросы до отмены ctx, затем ждет завершения активных запросов.
// После возврата лимитеры роутера остановлены
func (s *Server) Run(ctx context.Context) error {
	defer s.router.Close()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
