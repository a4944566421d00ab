package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crypto"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/handlers"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/jwt"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// ClientAPIKey идентификатор клиента, аутентифицированного по API ключу
const ClientAPIKey = "api-key"

var (
	errNoCredentials   = errors.New("missing credentials")
	errBothCredentials = errors.New("both api key and bearer token supplied")
	errInvalidAPIKey   = errors.New("invalid api key")
	errInvalidFormat   = errors.New("invalid authorization header format")
)

// Authenticator проверяет API ключ по bcrypt хешу или bearer токен устройства
type Authenticator struct {
	apiKeyHash []byte
	tokens     *jwt.Service
}

// NewAuthenticator создает Authenticator.
// Пустой apiKeyHash отключает API ключи, nil tokens отключает bearer токены
func NewAuthenticator(apiKeyHash string, tokens *jwt.Service) *Authenticator {
	return &Authenticator{
		apiKeyHash: []byte(apiKeyHash),
		tokens:     tokens,
	}
}

// Authenticate возвращает идентификатор клиента запроса.
// Должен быть передан ровно один из заголовков x-api-key или Authorization
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	apiKey := r.Header.Get(api.HeaderAPIKey)
	authHeader := r.Header.Get("Authorization")

	switch {
	case apiKey == "" && authHeader == "":
		return "", errNoCredentials
	case apiKey != "" && authHeader != "":
		return "", errBothCredentials
	case apiKey != "":
		if err := crypto.VerifyAPIKey(apiKey, a.apiKeyHash); err != nil {
			return "", errInvalidAPIKey
		}
		return ClientAPIKey, nil
	}

	// Ожидаем формат: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || a.tokens == nil {
		return "", errInvalidFormat
	}

	claims, err := a.tokens.Validate(parts[1])
	if err != nil {
		return "", err
	}

	return claims.DeviceID, nil
}

// AuthMiddleware создает middleware для проверки API ключа или JWT токена
func AuthMiddleware(logger *slog.Logger, auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := auth.Authenticate(r)
			if err != nil {
				logger.Warn("Authentication failed",
					"error", err,
					"path", r.URL.Path,
					"remote_addr", handlers.ClientIP(r),
				)
				handlers.WriteError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
				return
			}

			logger.Debug("Client authenticated", "client", client)
			recordClient(r.Context(), client)

			// Передаем запрос дальше с обновленным контекстом
			next.ServeHTTP(w, r.WithContext(handlers.WithClient(r.Context(), client)))
		})
	}
}
