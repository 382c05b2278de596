// stream.go — отдача байтов ассета с поддержкой Range-запросов.
//
// Протокол диапазонов строже http.ServeContent: поддерживается
// единственная форма bytes=START-END (END опционален), и любой
// диапазон, выходящий за пределы файла, отклоняется кодом 416
// с заголовком Content-Range: bytes */TOTAL — клиент на устройстве
// должен узнать актуальный размер, а не получить молча усечённое окно.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
)

// Заголовки кэширования: содержимое ассета иммутабельно,
// любые изменения — это новый ассет с новым ID.
const cacheControlImmutable = "public, max-age=31536000, immutable"

// StreamError — ошибка отдачи с HTTP-кодом.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StreamService — сервис отдачи байтов ассетов.
type StreamService struct {
	store  blob.Store
	assets *AssetService
	logger *slog.Logger
}

// NewStreamService создаёт сервис отдачи.
func NewStreamService(store blob.Store, assets *AssetService, logger *slog.Logger) *StreamService {
	return &StreamService{
		store:  store,
		assets: assets,
		logger: logger.With(slog.String("component", "stream_service")),
	}
}

// byteWindow — запрошенное окно байтов после валидации.
type byteWindow struct {
	start int64
	end   int64
}

// parseRange разбирает заголовок Range против размера total.
// Возвращает nil-окно при отсутствии заголовка (полная отдача).
// ok=false — диапазон некорректен или невыполним (416).
func parseRange(header string, total int64) (win *byteWindow, ok bool) {
	if header == "" {
		return nil, true
	}

	rangeSpec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return nil, false
	}
	startStr, endStr, found := strings.Cut(rangeSpec, "-")
	if !found || startStr == "" {
		return nil, false
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, false
	}

	end := total - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, false
		}
	}

	if start > end || start >= total || end >= total {
		return nil, false
	}
	return &byteWindow{start: start, end: end}, true
}

// ServeAsset отдаёт оригинальные байты ассета.
// asAttachment переключает стриминг (без Content-Disposition)
// и скачивание (Content-Disposition: inline + имя файла).
func (s *StreamService) ServeAsset(w http.ResponseWriter, r *http.Request, assetID string, asAttachment bool) *StreamError {
	meta, err := s.assets.Meta(r.Context(), assetID)
	if err != nil {
		s.logger.Error("Ошибка чтения метаданных",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return streamInternalError("Ошибка чтения метаданных")
	}
	if meta == nil {
		return streamNotFound(assetID)
	}

	// Метаданные могут пережить байты (окно конкурентного удаления,
	// TTL кэша): существование блоба проверяется до отправки заголовков
	head, err := s.store.Head(r.Context(), model.FileKey(assetID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return streamNotFound(assetID)
		}
		s.logger.Error("Ошибка чтения блоба ассета",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return streamInternalError("Ошибка чтения из хранилища")
	}

	total := head.ContentLength
	if total <= 0 {
		total = meta.SizeBytes
	}

	contentType := meta.Mime
	if asAttachment && meta.Type == model.AssetGLB {
		contentType = "model/gltf-binary"
	}
	if contentType == "" {
		contentType = head.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	extra := http.Header{}
	if asAttachment {
		extra.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", meta.OriginalFilename))
	}

	return s.serve(r.Context(), w, r, model.FileKey(assetID), total, contentType, extra)
}

// ServeUniversalMP4 отдаёт производный MP4 ассета.
// До завершения транскодирования (и для glb) вариант отсутствует — 404.
func (s *StreamService) ServeUniversalMP4(w http.ResponseWriter, r *http.Request, assetID string) *StreamError {
	meta, err := s.assets.Meta(r.Context(), assetID)
	if err != nil {
		return streamInternalError("Ошибка чтения метаданных")
	}
	if meta == nil {
		return streamNotFound(assetID)
	}

	head, err := s.store.Head(r.Context(), model.MP4Key(assetID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return &StreamError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("MP4-вариант ассета %s недоступен", assetID),
			}
		}
		s.logger.Error("Ошибка чтения MP4-варианта",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return streamInternalError("Ошибка чтения MP4-варианта")
	}

	return s.serve(r.Context(), w, r, model.MP4Key(assetID), head.ContentLength, "video/mp4", nil)
}

// serve выполняет протокол отдачи одного объекта хранилища:
// полная отдача (200), окно (206) или отказ (416).
func (s *StreamService) serve(ctx context.Context, w http.ResponseWriter, r *http.Request, key string, total int64, contentType string, extra http.Header) *StreamError {
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", cacheControlImmutable)
	h.Set("Content-Encoding", "identity")
	h.Set("Content-Type", contentType)
	for k, vals := range extra {
		for _, v := range vals {
			h.Set(k, v)
		}
	}

	win, ok := parseRange(r.Header.Get("Range"), total)
	if !ok {
		// Невыполнимый диапазон: сообщаем клиенту актуальный размер
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		middleware.OperationsTotal.WithLabelValues("stream", "invalid_range").Inc()
		return &StreamError{
			StatusCode: 416,
			Code:       apierrors.CodeInvalidRange,
			Message:    fmt.Sprintf("Диапазон %q невыполним для размера %d", r.Header.Get("Range"), total),
		}
	}

	var rng *blob.ByteRange
	if win != nil {
		rng = &blob.ByteRange{Start: win.start, End: win.end}
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", win.start, win.end, total))
		h.Set("Content-Length", strconv.FormatInt(win.end-win.start+1, 10))
	} else {
		h.Set("Content-Length", strconv.FormatInt(total, 10))
	}

	status := http.StatusOK
	if win != nil {
		status = http.StatusPartialContent
	}

	// HEAD: заголовки и статус без тела
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return nil
	}

	rc, err := s.store.GetStream(ctx, key, rng)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// Индекс и байты разошлись (удаление между проверкой и чтением)
			h.Del("Content-Range")
			h.Del("Content-Length")
			return streamNotFound(key)
		}
		s.logger.Error("Ошибка открытия потока",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return streamInternalError("Ошибка чтения из хранилища")
	}
	defer rc.Close()

	w.WriteHeader(status)
	if _, err := io.Copy(w, rc); err != nil {
		// Статус уже отправлен: фиксируем обрыв только в логе
		s.logger.Warn("Обрыв передачи",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil
	}

	middleware.OperationsTotal.WithLabelValues("stream", "success").Inc()
	return nil
}

func streamNotFound(id string) *StreamError {
	return &StreamError{
		StatusCode: 404,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Ассет %s не найден", id),
	}
}

func streamInternalError(msg string) *StreamError {
	return &StreamError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    msg,
	}
}
