// Пакет config — загрузка и валидация конфигурации Asset Hub
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Asset Hub.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Бэкенд хранилища: local или s3
	StorageBackend string
	// Корневая директория локального хранилища (только local)
	StorageRoot string
	// Параметры S3 (только s3)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PathStyle bool

	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Директория для временных файлов (spool загрузок и транскодирования)
	TmpDir string

	// Количество воркеров транскодирования
	TranscodeWorkers int
	// Ёмкость очереди задач транскодирования
	TranscodeQueue int
	// Пути к бинарникам ffmpeg/ffprobe
	FFmpegPath  string
	FFprobePath string

	// Базовый URL внешнего fleet API (пусто — интеграция выключена)
	FleetAPIURL string
	// Путь к JSON-файлу ключа fleet API: {"id": "...", "secret": "..."}
	FleetKeyPath string
	// Идентификатор конфигурации fleet для push-обновлений контента
	FleetConfigID string
	// Таймаут запросов к fleet API
	FleetTimeout time.Duration

	// Размер LRU-кэша метаданных ассетов
	MetaCacheSize int
	// TTL записи кэша метаданных
	MetaCacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (fleet API) в метриках topologymetrics
	DephealthDepName string
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// AH_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("AH_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("AH_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AH_PORT: значение %d вне допустимого диапазона", cfg.Port)
	}

	// AH_STORAGE_BACKEND — бэкенд хранилища (по умолчанию local)
	cfg.StorageBackend = getEnvDefault("AH_STORAGE_BACKEND", "local")
	switch cfg.StorageBackend {
	case "local":
		// AH_STORAGE_ROOT — обязательный для local
		cfg.StorageRoot, err = getEnvRequired("AH_STORAGE_ROOT")
		if err != nil {
			return nil, err
		}
	case "s3":
		if cfg.S3Endpoint, err = getEnvRequired("AH_S3_ENDPOINT"); err != nil {
			return nil, err
		}
		if cfg.S3Bucket, err = getEnvRequired("AH_S3_BUCKET"); err != nil {
			return nil, err
		}
		if cfg.S3AccessKey, err = getEnvRequired("AH_S3_ACCESS_KEY"); err != nil {
			return nil, err
		}
		if cfg.S3SecretKey, err = getEnvRequired("AH_S3_SECRET_KEY"); err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("AH_S3_REGION", "")
		if cfg.S3UseSSL, err = getEnvBool("AH_S3_USE_SSL", true); err != nil {
			return nil, fmt.Errorf("AH_S3_USE_SSL: %w", err)
		}
		if cfg.S3PathStyle, err = getEnvBool("AH_S3_PATH_STYLE", false); err != nil {
			return nil, fmt.Errorf("AH_S3_PATH_STYLE: %w", err)
		}
	default:
		return nil, fmt.Errorf("AH_STORAGE_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.StorageBackend)
	}

	// AH_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 20 GB)
	cfg.MaxFileSize, err = getEnvInt64("AH_MAX_FILE_SIZE", 20<<30)
	if err != nil {
		return nil, fmt.Errorf("AH_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("AH_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// AH_TMP_DIR — директория временных файлов (по умолчанию системная)
	cfg.TmpDir = getEnvDefault("AH_TMP_DIR", os.TempDir())

	// AH_TRANSCODE_WORKERS — количество воркеров (по умолчанию 2)
	cfg.TranscodeWorkers, err = getEnvInt("AH_TRANSCODE_WORKERS", 2)
	if err != nil {
		return nil, fmt.Errorf("AH_TRANSCODE_WORKERS: %w", err)
	}
	if cfg.TranscodeWorkers <= 0 {
		return nil, fmt.Errorf("AH_TRANSCODE_WORKERS: значение должно быть положительным")
	}

	// AH_TRANSCODE_QUEUE — ёмкость очереди задач (по умолчанию 16)
	cfg.TranscodeQueue, err = getEnvInt("AH_TRANSCODE_QUEUE", 16)
	if err != nil {
		return nil, fmt.Errorf("AH_TRANSCODE_QUEUE: %w", err)
	}
	if cfg.TranscodeQueue <= 0 {
		return nil, fmt.Errorf("AH_TRANSCODE_QUEUE: значение должно быть положительным")
	}

	// AH_FFMPEG_PATH / AH_FFPROBE_PATH — пути к бинарникам
	cfg.FFmpegPath = getEnvDefault("AH_FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvDefault("AH_FFPROBE_PATH", "ffprobe")

	// AH_FLEET_API_URL — базовый URL fleet API (опционально)
	cfg.FleetAPIURL = getEnvDefault("AH_FLEET_API_URL", "")
	if cfg.FleetAPIURL != "" {
		// AH_FLEET_KEY_PATH — обязательный при включённой интеграции
		cfg.FleetKeyPath, err = getEnvRequired("AH_FLEET_KEY_PATH")
		if err != nil {
			return nil, err
		}
	}
	// AH_FLEET_CONFIG_ID — конфигурация fleet для push-обновлений (опционально)
	cfg.FleetConfigID = getEnvDefault("AH_FLEET_CONFIG_ID", "")
	cfg.FleetTimeout, err = getEnvDuration("AH_FLEET_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AH_FLEET_TIMEOUT: %w", err)
	}

	// AH_META_CACHE_SIZE — размер LRU-кэша метаданных (по умолчанию 1024)
	cfg.MetaCacheSize, err = getEnvInt("AH_META_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("AH_META_CACHE_SIZE: %w", err)
	}
	if cfg.MetaCacheSize <= 0 {
		return nil, fmt.Errorf("AH_META_CACHE_SIZE: значение должно быть положительным")
	}

	// AH_META_CACHE_TTL — TTL записи кэша (по умолчанию 30s)
	cfg.MetaCacheTTL, err = getEnvDuration("AH_META_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AH_META_CACHE_TTL: %w", err)
	}

	// AH_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AH_LOG_LEVEL: %w", err)
	}

	// AH_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AH_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AH_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AH_SHUTDOWN_TIMEOUT: %w", err)
	}

	// AH_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// AH_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("AH_DEPHEALTH_GROUP", "asset-hub")

	// AH_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("AH_DEPHEALTH_DEP_NAME", "fleet-api")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
