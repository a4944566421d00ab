// Package servertest запускает полноценный сервер синхронизации на httptest
// для тестов клиентских пакетов.
package servertest

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crypto"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/jwt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/metrics"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/middleware"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage/sqlite"
)

// APIKey ключ, который принимает тестовый сервер
const APIKey = "test-api-key"

// Server тестовый сервер и его хранилище
type Server struct {
	*httptest.Server
	Storage *sqlite.Storage
	Tokens  *jwt.Service
	Metrics *metrics.Metrics
}

// New запускает сервер на in-memory SQLite. Сервер останавливается в t.Cleanup
func New(t *testing.T) *Server {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)

	hash, err := crypto.HashAPIKey(APIKey, bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := jwt.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := server.NewRouter(server.Deps{
		Logger:  logger,
		Storage: store,
		DB:      store.DB(),
		Auth:    middleware.NewAuthenticator(hash, tokens),
		Metrics: m,
		RateLimit: server.RateLimit{
			Rate:   100000,
			Window: time.Minute,
		},
	})

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		router.Close()
		_ = store.Close()
	})

	return &Server{Server: ts, Storage: store, Tokens: tokens, Metrics: m}
}

// Token выпускает bearer токен для устройства
func (s *Server) Token(t *testing.T, deviceID string) string {
	t.Helper()

	token, err := s.Tokens.Issue(deviceID)
	require.NoError(t, err)
	return token
}
