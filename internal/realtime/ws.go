// ws.go — WebSocket endpoint устройств.
//
// Протокол (текстовые JSON-сообщения):
//
//	сервер → welcome {type, serverTime} сразу после апгрейда
//	устройство → hello {type, device:{androidId, model}, app:{name, version}}
//	сервер → helloAck
//	устройство → ping, сервер → pong
//
// Устройство считается подключённым после hello. Команды сервера
// (Registry.Send) — произвольный JSON, протокол их не интерпретирует.
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// helloMessage — первое сообщение устройства после подключения.
type helloMessage struct {
	Type   string `json:"type"`
	Device struct {
		AndroidID string `json:"androidId"`
		Model     string `json:"model"`
	} `json:"device"`
	App struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"app"`
}

// Handler — обработчик WebSocket-подключений устройств.
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler создаёт WebSocket-обработчик поверх реестра.
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Устройства подключаются не из браузера, Origin не проверяется
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "realtime")),
	}
}

// ServeHTTP апгрейдит соединение и обслуживает его до закрытия.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам пишет HTTP-ошибку клиенту
		h.logger.Warn("Ошибка апгрейда WebSocket", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	writeMu := &sync.Mutex{}
	send := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}

	send(map[string]any{"type": "welcome", "serverTime": time.Now().UnixMilli()})

	var deviceID string
	defer func() {
		if deviceID != "" {
			h.registry.Remove(deviceID, conn)
			h.logger.Info("Устройство отключено", slog.String("device_id", deviceID))
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			send(map[string]any{"type": "error", "message": "Invalid JSON"})
			continue
		}

		switch probe.Type {
		case "hello":
			var hello helloMessage
			_ = json.Unmarshal(data, &hello)

			deviceID = hello.Device.AndroidID
			if deviceID == "" {
				deviceID = fmt.Sprintf("unknown-%06x", rand.Int31n(1<<24))
			}
			h.registry.Add(ClientInfo{
				ID:          deviceID,
				Model:       hello.Device.Model,
				App:         hello.App.Name,
				Version:     hello.App.Version,
				ConnectedAt: time.Now().UnixMilli(),
			}, conn, writeMu)

			h.logger.Info("Устройство подключено",
				slog.String("device_id", deviceID),
				slog.String("model", hello.Device.Model),
			)
			send(map[string]any{"type": "helloAck"})
		case "ping":
			send(map[string]any{"type": "pong"})
		default:
			h.logger.Debug("Неизвестный тип сообщения",
				slog.String("type", probe.Type),
				slog.String("device_id", deviceID),
			)
		}
	}
}
