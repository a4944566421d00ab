package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/handlers"
)

// Limit допускает Rate запросов за Window
type Limit struct {
	Rate   int
	Window time.Duration
}

// KeyFunc выбирает ключ, по которому считается лимит
type KeyFunc func(r *http.Request) string

// ByIP считает лимит по IP адресу клиента
func ByIP(r *http.Request) string {
	return "ip:" + handlers.ClientIP(r)
}

// ByDevice считает лимит по аутентифицированному клиенту (устройству или API ключу).
// До аутентификации используется IP адрес
func ByDevice(r *http.Request) string {
	if client, ok := handlers.GetClient(r.Context()); ok {
		return "client:" + client
	}
	return ByIP(r)
}

// Limiter token bucket с непрерывным пополнением: Rate токенов за Window на ключ.
// Фоновая очистка бакетов работает до вызова Stop
type Limiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	key      KeyFunc
	now      func() time.Time
	done     chan struct{}
	limit    Limit
	stopOnce sync.Once
	mu       sync.Mutex
}

type bucket struct {
	updated time.Time
	tokens  float64
}

// NewLimiter создает Limiter и запускает очистку неактивных бакетов
func NewLimiter(limit Limit, key KeyFunc, logger *slog.Logger) *Limiter {
	l := newLimiter(limit, key, logger, time.Now)
	go l.sweep()
	return l
}

func newLimiter(limit Limit, key KeyFunc, logger *slog.Logger, now func() time.Time) *Limiter {
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		logger:  logger,
		key:     key,
		now:     now,
		done:    make(chan struct{}),
		limit:   limit,
	}
}

// Allow списывает токен с бакета key. Если токенов нет, возвращает false
// и время до появления следующего токена
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(l.limit.Rate)
	perToken := l.limit.Window / time.Duration(max(l.limit.Rate, 1))

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, updated: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.updated)
	if elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+float64(elapsed)/float64(perToken))
		b.updated = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	return false, time.Duration((1 - b.tokens) * float64(perToken))
}

// Middleware отвечает 429 с заголовком Retry-After, когда лимит ключа исчерпан
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)

		ok, wait := l.Allow(key)
		if !ok {
			l.logger.Warn("Rate limit exceeded",
				"key", key,
				"method", r.Method,
				"path", r.URL.Path,
				"retry_after", wait,
			)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			handlers.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop останавливает фоновую очистку. Повторный вызов ничего не делает
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// sweep удаляет бакеты, которые успели пополниться до конца:
// такой бакет не отличается от нового
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.limit.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= l.limit.Window {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
