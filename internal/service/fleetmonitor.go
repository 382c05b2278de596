// fleetmonitor.go — мониторинг доступности fleet API через topologymetrics.
//
// Fleet API — единственная внешняя зависимость Asset Hub, и от неё зависят
// push конфигураций и списки устройств. Монитор включается только вместе
// с интеграцией fleet (AH_FLEET_API_URL) и публикует на /metrics:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks" // Регистрация фабрик checker-ов (HTTP и др.)
)

// FleetMonitor — периодическая HTTP-проверка доступности fleet API.
type FleetMonitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewFleetMonitor создаёт монитор fleet API.
// Метрики регистрируются в глобальном Prometheus registry.
//
// name и group — вершина и группа графа зависимостей (AH_DEPHEALTH_NAME,
// AH_DEPHEALTH_GROUP), depName — имя fleet API в метриках
// (AH_DEPHEALTH_DEP_NAME). Fleet API помечен critical: без него
// деградируют push конфигураций и выдача списков устройств.
func NewFleetMonitor(
	name string,
	group string,
	depName string,
	fleetURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*FleetMonitor, error) {
	dh, err := dephealth.New(
		name,
		group,
		dephealth.WithLogger(logger),
		dephealth.HTTP(depName,
			dephealth.FromURL(fleetURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
	)
	if err != nil {
		return nil, err
	}

	return &FleetMonitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "fleet_monitor")),
	}, nil
}

// Start запускает периодическую проверку fleet API.
func (m *FleetMonitor) Start(ctx context.Context) error {
	m.logger.Info("Мониторинг fleet API запущен")
	return m.dh.Start(ctx)
}

// Stop останавливает мониторинг.
func (m *FleetMonitor) Stop() {
	m.dh.Stop()
	m.logger.Info("Мониторинг fleet API остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (m *FleetMonitor) Health() map[string]bool {
	return m.dh.Health()
}
