// Пакет realtime — канал команд к подключённым устройствам.
// registry.go — in-memory реестр активных WebSocket-подключений.
// Реестр не переживает рестарт: устройства переподключаются сами.
package realtime

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientInfo — сведения о подключённом устройстве (без соединения).
type ClientInfo struct {
	ID          string `json:"id"`
	Model       string `json:"model,omitempty"`
	App         string `json:"app,omitempty"`
	Version     string `json:"version,omitempty"`
	ConnectedAt int64  `json:"connectedAt"`
}

// client — запись реестра: сведения плюс соединение.
// writeMu сериализует записи: gorilla/websocket допускает
// не более одного конкурентного писателя на соединение.
// Мьютекс общий с обработчиком соединения (ответы протокола
// и команды реестра пишут в один conn).
type client struct {
	info    ClientInfo
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

// Registry — потокобезопасный реестр подключённых устройств.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*client),
	}
}

// Add регистрирует подключение устройства. Повторное подключение
// того же устройства замещает запись: последнее соединение выигрывает.
// writeMu — мьютекс записи соединения, общий с его обработчиком.
func (r *Registry) Add(info ClientInfo, conn *websocket.Conn, writeMu *sync.Mutex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[info.ID] = &client{info: info, conn: conn, writeMu: writeMu}
}

// Remove удаляет запись устройства, если она всё ещё указывает
// на conn. Защита от гонки: переподключившееся устройство уже
// заместило запись, закрытие старого соединения её не трогает.
func (r *Registry) Remove(deviceID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clients[deviceID]
	if ok && current.conn == conn {
		delete(r.clients, deviceID)
	}
}

// List возвращает сведения обо всех подключённых устройствах.
func (r *Registry) List() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		infos = append(infos, c.info)
	}
	return infos
}

// Connected проверяет, подключено ли устройство.
func (r *Registry) Connected(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[deviceID]
	return ok
}

// Send отправляет устройству произвольную JSON-команду.
// Возвращает ошибку, если устройство не подключено или запись не удалась.
func (r *Registry) Send(deviceID string, payload []byte) error {
	r.mu.RLock()
	c, ok := r.clients[deviceID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("устройство %s не подключено", deviceID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("отправка команды устройству %s: %w", deviceID, err)
	}
	return nil
}
