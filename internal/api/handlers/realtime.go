// realtime.go — HTTP handlers реестра подключённых устройств
// и отправки команд через WebSocket-канал.
package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/realtime"
)

// maxCommandSize — лимит тела произвольной команды устройству.
const maxCommandSize = 64 << 10

// RealtimeHandler — обработчик realtime endpoints.
type RealtimeHandler struct {
	registry *realtime.Registry
}

// NewRealtimeHandler создаёт обработчик realtime endpoints.
func NewRealtimeHandler(registry *realtime.Registry) *RealtimeHandler {
	return &RealtimeHandler{registry: registry}
}

// Clients обрабатывает GET /api/v1/realtime/clients.
func (h *RealtimeHandler) Clients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": h.registry.List()})
}

// Command обрабатывает POST /api/v1/realtime/clients/{deviceId}/command:
// пересылает тело запроса как есть подключённому устройству.
func (h *RealtimeHandler) Command(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	if !h.registry.Connected(deviceID) {
		errors.NotFound(w, "Устройство не подключено")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCommandSize))
	if err != nil || len(payload) == 0 {
		errors.ValidationError(w, "Тело команды отсутствует")
		return
	}

	if err := h.registry.Send(deviceID, payload); err != nil {
		errors.WriteError(w, http.StatusBadGateway, errors.CodeUpstreamError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
