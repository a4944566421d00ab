// Package metrics публикует метрики HTTP сервера и синхронизации в формате Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filamentdb"

// Metrics набор метрик сервера с собственным реестром
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	syncRecords *prometheus.CounterVec
	syncPasses  prometheus.Counter
}

// New создает метрики и регистрирует их вместе со стандартными коллекторами процесса
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Records processed by /sync, by direction.",
		}, []string{"direction"}),
		syncPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_requests_total",
			Help:      "Handled sync requests.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.syncRecords,
		m.syncPasses,
	)

	return m
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler отдает метрики для GET /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync учитывает результат одного запроса синхронизации
func (m *Metrics) ObserveSync(uploaded, downloaded, rejected int) {
	m.syncPasses.Inc()
	m.syncRecords.WithLabelValues("upload").Add(float64(uploaded))
	m.syncRecords.WithLabelValues("download").Add(float64(downloaded))
	m.syncRecords.WithLabelValues("rejected").Add(float64(rejected))
}

// Middleware считает запросы и их длительность.
// Путь берется из шаблона маршрута, чтобы ключи записей не попадали в метки
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}

		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
