// metrics.go — Prometheus HTTP метрики Asset Hub.
// Регистрирует метрики: ah_http_requests_total, ah_http_request_duration_seconds.
// Бизнес-метрики (ah_assets_total, ah_transcode_jobs_total и др.) экспортируются
// отсюда и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ah_http_requests_total",
			Help: "Общее количество HTTP-запросов к Asset Hub",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ah_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Asset Hub в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// AssetsTotal — текущее количество ассетов в индексе (gauge).
	AssetsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ah_assets_total",
			Help: "Текущее количество ассетов в индексе",
		},
	)

	// OperationsTotal — общее количество операций над ассетами и заданиями.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ah_operations_total",
			Help: "Общее количество операций над ассетами и заданиями",
		},
		[]string{"operation", "result"},
	)

	// TranscodeJobsTotal — количество задач транскодирования по исходу.
	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ah_transcode_jobs_total",
			Help: "Количество задач транскодирования по исходу",
		},
		[]string{"result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (id-сегменты заменяются на плейсхолдеры против роста кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет изменяемые сегменты пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/assets/<uuid>/stream → /api/v1/assets/{id}/stream
// /api/v1/devices/<dev>/jobs/<uuid>/progress → /api/v1/devices/{deviceId}/jobs/{jobId}/progress
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	case path == "/api/v1/assets", path == "/api/v1/assets/upload":
		return path
	case strings.HasPrefix(path, "/api/v1/assets/"):
		suffix := ""
		rest := path[len("/api/v1/assets/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			suffix = rest[i:]
		}
		return "/api/v1/assets/{id}" + suffix
	case strings.HasPrefix(path, "/api/v1/devices/"):
		rest := path[len("/api/v1/devices/"):]
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return "/api/v1/devices/{deviceId}"
		}
		tail := rest[i:]
		if tail == "/jobs" || tail == "/jobs/next" {
			return "/api/v1/devices/{deviceId}" + tail
		}
		if strings.HasPrefix(tail, "/jobs/") {
			jobRest := tail[len("/jobs/"):]
			if j := strings.IndexByte(jobRest, '/'); j >= 0 {
				return "/api/v1/devices/{deviceId}/jobs/{jobId}" + jobRest[j:]
			}
			return "/api/v1/devices/{deviceId}/jobs/{jobId}"
		}
		return "/api/v1/devices/{deviceId}" + tail
	case strings.HasPrefix(path, "/api/v1/realtime/clients/"):
		rest := path[len("/api/v1/realtime/clients/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/v1/realtime/clients/{deviceId}" + rest[i:]
		}
		return "/api/v1/realtime/clients/{deviceId}"
	case strings.HasPrefix(path, "/api/v1/fleet/devices/"):
		rest := path[len("/api/v1/fleet/devices/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/v1/fleet/devices/{deviceId}" + rest[i:]
		}
		return "/api/v1/fleet/devices/{deviceId}"
	}
	return path
}
