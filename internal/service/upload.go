// Пакет service — бизнес-логика Asset Hub.
// upload.go — сервис загрузки ассетов с потоковым SHA-256.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/config"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
	"github.com/immerse-zhaw/asset-hub/internal/transcode"
)

// isVideoMime принимает video/* и контейнеры Apple, которые клиенты
// присылают с application/-типами (quicktime, x-m4v). Регистр не важен:
// MIME из multipart-заголовка приходит как есть.
func isVideoMime(mime string) bool {
	m := strings.ToLower(mime)
	return strings.HasPrefix(m, "video/") ||
		strings.Contains(m, "quicktime") ||
		strings.Contains(m, "x-m4v")
}

// UploadParams — параметры загрузки ассета.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Type — заявленный тип ассета (glb, video)
	Type string
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// Mime — MIME-тип файла
	Mime string
	// Size — заявленный размер файла (из multipart part, -1 если неизвестен)
	Size int64
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки ассетов.
type UploadService struct {
	cfg     *config.Config
	mutator *docstore.Mutator
	cache   *MetaCache
	pool    *transcode.Pool
	logger  *slog.Logger
}

// NewUploadService создаёт сервис загрузки ассетов.
func NewUploadService(
	cfg *config.Config,
	mutator *docstore.Mutator,
	cache *MetaCache,
	pool *transcode.Pool,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:     cfg,
		mutator: mutator,
		cache:   cache,
		pool:    pool,
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// Upload принимает файл ассета и делает его доступным для стриминга.
//
// Поток:
//  1. Валидация типа, имени файла и MIME (до записи каких-либо байтов)
//  2. Проверка размера
//  3. Потоковая запись в хранилище с подсчётом SHA-256 (TeeReader);
//     для видео — параллельная spool-копия во временный файл
//  4. Запись meta.json (для видео — со статусом transcode: processing)
//  5. Добавление проекции в assets/index.json
//  6. Постановка задачи транскодирования (только видео)
//
// Клиент получает ответ сразу после шага 5: транскодирование асинхронно.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*AssetView, *UploadError) {
	// 1. Валидируем вход до того, как тронем хранилище
	if vErr := validateUpload(params); vErr != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, vErr
	}

	// 2. Проверяем заявленный размер
	if params.Size > s.cfg.MaxFileSize {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	assetType := model.AssetType(params.Type)
	assetID := uuid.New().String()

	// 3. Потоковая запись: SHA-256 считается над байтами в момент записи
	hasher := sha256.New()
	reader := io.TeeReader(params.Reader, hasher)

	// Для видео байты дополнительно спулятся во временный файл —
	// вход транскодера, хранилище может быть удалённым (S3)
	var spoolPath string
	if assetType == model.AssetVideo {
		spool, err := os.CreateTemp(s.cfg.TmpDir, "upload-*.spool")
		if err != nil {
			s.logger.Error("Ошибка создания spool-файла", slog.String("error", err.Error()))
			return nil, uploadInternalError("Внутренняя ошибка при подготовке загрузки")
		}
		spoolPath = spool.Name()
		reader = io.TeeReader(reader, spool)
		defer spool.Close()
	}

	cleanup := func() {
		if spoolPath != "" {
			os.Remove(spoolPath)
		}
		_ = s.mutator.Store().DeleteTree(ctx, model.AssetPrefix(assetID))
	}

	size, err := s.mutator.Store().Put(ctx, model.FileKey(assetID), params.Mime, reader)
	if err != nil {
		cleanup()
		s.logger.Error("Ошибка записи файла ассета",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, uploadInternalError("Ошибка записи файла в хранилище")
	}

	if size > s.cfg.MaxFileSize {
		// Заявленный размер мог отсутствовать или лгать
		cleanup()
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", size, s.cfg.MaxFileSize),
		}
	}

	meta := model.AssetMeta{
		ID:               assetID,
		Type:             assetType,
		OriginalFilename: params.OriginalFilename,
		Mime:             params.Mime,
		SizeBytes:        size,
		SHA256:           hex.EncodeToString(hasher.Sum(nil)),
	}
	if assetType == model.AssetVideo {
		meta.Transcode = &model.TranscodeInfo{
			Status:    model.TranscodeProcessing,
			UpdatedAt: time.Now().UnixMilli(),
		}
	}

	// 4. Записываем meta.json
	if err := docstore.Write(ctx, s.mutator.Store(), model.MetaKey(assetID), meta); err != nil {
		cleanup()
		s.logger.Error("Ошибка записи метаданных ассета",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, uploadInternalError("Ошибка записи метаданных")
	}

	// 5. Добавляем проекцию в индекс (сериализовано мутатором)
	index, err := docstore.Update(ctx, s.mutator, model.AssetIndexKey, []model.AssetListing{},
		func(listings []model.AssetListing) ([]model.AssetListing, error) {
			return append(listings, meta.Listing()), nil
		})
	if err != nil {
		cleanup()
		_ = s.mutator.Store().Delete(ctx, model.MetaKey(assetID))
		s.logger.Error("Ошибка обновления индекса ассетов",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, uploadInternalError("Ошибка обновления индекса")
	}
	middleware.AssetsTotal.Set(float64(len(index)))

	s.cache.Set(assetID, &meta)

	// 6. Видео уходит в очередь транскодирования
	if assetType == model.AssetVideo {
		s.pool.Enqueue(ctx, transcode.Task{
			AssetID:   assetID,
			InputPath: spoolPath,
			Mime:      params.Mime,
		})
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	s.logger.Info("Ассет загружен",
		slog.String("asset_id", assetID),
		slog.String("type", params.Type),
		slog.String("filename", params.OriginalFilename),
		slog.Int64("size", size),
		slog.String("sha256", meta.SHA256),
	)

	view := newAssetView(&meta)
	return &view, nil
}

// validateUpload проверяет тип, имя файла и MIME до записи байтов.
func validateUpload(params UploadParams) *UploadError {
	badRequest := func(msg string) *UploadError {
		return &UploadError{StatusCode: 400, Code: apierrors.CodeValidationError, Message: msg}
	}

	switch model.AssetType(params.Type) {
	case model.AssetGLB:
		if !strings.HasSuffix(strings.ToLower(params.OriginalFilename), ".glb") {
			return badRequest(fmt.Sprintf("Для типа glb ожидается файл с расширением .glb, получено %q", params.OriginalFilename))
		}
	case model.AssetVideo:
		if !isVideoMime(params.Mime) {
			return badRequest(fmt.Sprintf("MIME-тип %q не является видео", params.Mime))
		}
	default:
		return badRequest(fmt.Sprintf("Недопустимый тип ассета %q, допустимые: glb, video", params.Type))
	}

	if params.OriginalFilename == "" {
		return badRequest("Имя файла не задано")
	}
	if filepath.Base(params.OriginalFilename) != params.OriginalFilename {
		return badRequest("Имя файла не должно содержать путь")
	}
	return nil
}

func uploadInternalError(msg string) *UploadError {
	return &UploadError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    msg,
	}
}
