// Точка входа Asset Hub — сервиса хранения и доставки ассетов
// для парка XR-устройств.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/immerse-zhaw/asset-hub/internal/api/handlers"
	"github.com/immerse-zhaw/asset-hub/internal/config"
	"github.com/immerse-zhaw/asset-hub/internal/fleet"
	"github.com/immerse-zhaw/asset-hub/internal/realtime"
	"github.com/immerse-zhaw/asset-hub/internal/server"
	"github.com/immerse-zhaw/asset-hub/internal/service"
	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
	"github.com/immerse-zhaw/asset-hub/internal/transcode"
)

func main() {
	// .env — опционально, для локальной разработки
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Asset Hub запускается",
		slog.String("version", config.Version),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.Int("port", cfg.Port),
	)

	// --- Инициализация компонентов ---

	// 1. Байтовое хранилище: local или s3
	var store blob.Store
	switch cfg.StorageBackend {
	case "s3":
		store, err = blob.NewS3(blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		store, err = blob.NewLocal(cfg.StorageRoot)
	}
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Хранилище инициализировано", slog.String("backend", cfg.StorageBackend))

	// 2. Мутатор JSON-документов (сериализованные read-modify-write)
	mutator := docstore.NewMutator(store)

	// 3. Кэш метаданных
	cache := service.NewMetaCache(cfg.MetaCacheSize, cfg.MetaCacheTTL)

	// 4. Пул транскодирования
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := transcode.NewPool(transcode.Config{
		Workers:     cfg.TranscodeWorkers,
		QueueSize:   cfg.TranscodeQueue,
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TmpDir:      cfg.TmpDir,
	}, mutator, cache, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// 5. Сервисы
	assetSvc := service.NewAssetService(mutator, cache, logger)
	uploadSvc := service.NewUploadService(cfg, mutator, cache, pool, logger)
	streamSvc := service.NewStreamService(store, assetSvc, logger)
	jobSvc := service.NewJobService(mutator, assetSvc, logger)

	h := server.Handlers{
		Assets: handlers.NewAssetsHandler(uploadSvc, assetSvc, streamSvc, cfg.MaxFileSize),
		Jobs:   handlers.NewJobsHandler(jobSvc),
		Health: handlers.NewHealthHandler(store),
	}

	// 6. Realtime-канал устройств
	registry := realtime.NewRegistry()
	h.Realtime = handlers.NewRealtimeHandler(registry)
	h.RealtimeWS = realtime.NewHandler(registry, logger)

	// 7. Интеграция с fleet API (опционально)
	if cfg.FleetAPIURL != "" {
		fleetClient, fleetErr := fleet.New(cfg.FleetAPIURL, cfg.FleetKeyPath, cfg.FleetTimeout, logger)
		if fleetErr != nil {
			logger.Error("Ошибка инициализации fleet-клиента", slog.String("error", fleetErr.Error()))
			os.Exit(1)
		}
		h.Fleet = handlers.NewFleetHandler(fleetClient, cfg.FleetConfigID)
		logger.Info("Интеграция с fleet API включена", slog.String("url", cfg.FleetAPIURL))

		// 7.1 topologymetrics — мониторинг доступности fleet API
		monitor, monitorErr := service.NewFleetMonitor(
			cfg.DephealthName,
			cfg.DephealthGroup,
			cfg.DephealthDepName,
			cfg.FleetAPIURL,
			cfg.DephealthCheckInterval,
			logger,
		)
		if monitorErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", monitorErr.Error()),
			)
		} else if startErr := monitor.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer monitor.Stop()
		}
	}

	// 8. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, h)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
