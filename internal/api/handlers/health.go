// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"time"

	"github.com/immerse-zhaw/asset-hub/internal/config"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
)

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	store   blob.Store
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(store blob.Store) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		store:   store,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "asset-hub",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Готовность = хранилище отвечает на запрос существования индекса.
// Сам индекс при этом может ещё не существовать — важен ответ бэкенда.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storageCheck := map[string]any{"status": "ok"}
	status := "ok"
	httpStatus := http.StatusOK

	if _, err := h.store.Exists(r.Context(), model.AssetIndexKey); err != nil {
		storageCheck = map[string]any{"status": "fail", "error": err.Error()}
		status = "fail"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"checks": map[string]any{
			"storage": storageCheck,
		},
	})
}
