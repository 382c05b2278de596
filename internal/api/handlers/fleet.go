// fleet.go — HTTP handlers интеграции с внешним fleet API.
// Все ошибки внешнего API транслируются как 502 UPSTREAM_ERROR.
package handlers

import (
	"net/http"

	"github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/fleet"
)

// FleetHandler — обработчик fleet endpoints.
// configID — конфигурация для push-обновлений контента (AH_FLEET_CONFIG_ID).
type FleetHandler struct {
	client   *fleet.Client
	configID string
}

// NewFleetHandler создаёт обработчик fleet endpoints.
func NewFleetHandler(client *fleet.Client, configID string) *FleetHandler {
	return &FleetHandler{client: client, configID: configID}
}

// Devices обрабатывает GET /api/v1/fleet/devices.
func (h *FleetHandler) Devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.client.ListDevices(r.Context())
	if err != nil {
		errors.UpstreamError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// Apps обрабатывает GET /api/v1/fleet/apps.
func (h *FleetHandler) Apps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.client.ListApps(r.Context())
	if err != nil {
		errors.UpstreamError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

// Files обрабатывает GET /api/v1/fleet/files.
func (h *FleetHandler) Files(w http.ResponseWriter, r *http.Request) {
	files, err := h.client.ListFiles(r.Context())
	if err != nil {
		errors.UpstreamError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// UpdateConfig обрабатывает POST /api/v1/fleet/updateConfig:
// пушит текущий набор приложений и файлов в конфигурацию парка.
func (h *FleetHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if h.configID == "" {
		errors.ValidationError(w, "AH_FLEET_CONFIG_ID не задан, push-обновление недоступно")
		return
	}

	if err := h.client.UpdateConfiguration(r.Context(), h.configID); err != nil {
		errors.UpstreamError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
