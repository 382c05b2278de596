// Пакет server — HTTP-сервер Asset Hub с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/immerse-zhaw/asset-hub/internal/api/handlers"
	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/config"
)

// Handlers — обработчики всех групп маршрутов.
// Fleet и Realtime опциональны: nil выключает группу маршрутов.
type Handlers struct {
	Assets   *handlers.AssetsHandler
	Jobs     *handlers.JobsHandler
	Health   *handlers.HealthHandler
	Fleet    *handlers.FleetHandler
	Realtime *handlers.RealtimeHandler
	// RealtimeWS — WebSocket endpoint устройств
	RealtimeWS http.Handler
}

// Server — HTTP-сервер Asset Hub.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics — вне /api/v1
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Post("/upload", h.Assets.Upload)
			r.Get("/", h.Assets.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Assets.Get)
				r.Delete("/", h.Assets.Delete)
				r.Get("/stream", h.Assets.Stream)
				r.Head("/stream", h.Assets.Stream)
				r.Get("/download", h.Assets.Download)
				r.Head("/download", h.Assets.Download)
				r.Get("/mp4/universal.mp4", h.Assets.UniversalMP4)
				r.Head("/mp4/universal.mp4", h.Assets.UniversalMP4)
			})
		})

		r.Route("/devices/{deviceId}/jobs", func(r chi.Router) {
			r.Post("/", h.Jobs.Enqueue)
			r.Get("/", h.Jobs.List)
			r.Get("/next", h.Jobs.Next)
			r.Post("/{jobId}/progress", h.Jobs.Progress)
			r.Post("/{jobId}/complete", h.Jobs.Complete)
		})

		if h.Fleet != nil {
			r.Route("/fleet", func(r chi.Router) {
				r.Get("/devices", h.Fleet.Devices)
				r.Get("/apps", h.Fleet.Apps)
				r.Get("/files", h.Fleet.Files)
				r.Post("/updateConfig", h.Fleet.UpdateConfig)
			})
		}

		if h.Realtime != nil {
			r.Route("/realtime", func(r chi.Router) {
				r.Get("/clients", h.Realtime.Clients)
				r.Post("/clients/{deviceId}/command", h.Realtime.Command)
				r.Handle("/ws", h.RealtimeWS)
			})
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
		// WriteTimeout не задан: range-стриминг больших видео
		// может легитимно длиться дольше любого разумного таймаута
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown
// с таймаутом AH_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
