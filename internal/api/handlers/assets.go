// Пакет handlers — HTTP handlers Asset Hub.
// assets.go — операции над ассетами: upload, list, get, delete,
// стриминг и скачивание, отдача производного MP4.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/service"
)

// multipartMemoryLimit — часть multipart form, удерживаемая в памяти
// при парсинге; остальное спулится на диск.
const multipartMemoryLimit = 32 << 20

// multipartOverhead — запас поверх лимита размера файла на служебные
// части формы (границы, заголовки частей, поле type).
const multipartOverhead = 1 << 20

// AssetsHandler — обработчик endpoints ассетов.
type AssetsHandler struct {
	uploadSvc *service.UploadService
	assetSvc  *service.AssetService
	streamSvc *service.StreamService
	// maxBody — жёсткий предел тела запроса загрузки: заведомо
	// превышающие лимит тела обрываются до спула формы на диск
	maxBody int64
}

// NewAssetsHandler создаёт обработчик endpoints ассетов.
func NewAssetsHandler(
	uploadSvc *service.UploadService,
	assetSvc *service.AssetService,
	streamSvc *service.StreamService,
	maxFileSize int64,
) *AssetsHandler {
	return &AssetsHandler{
		uploadSvc: uploadSvc,
		assetSvc:  assetSvc,
		streamSvc: streamSvc,
		maxBody:   maxFileSize + multipartOverhead,
	}
}

// Upload обрабатывает POST /api/v1/assets/upload.
// Multipart form: file (обязательно), type (обязательно: glb | video).
func (h *AssetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.FileTooLarge(w, fmt.Sprintf("Тело запроса превышает предел %d байт", tooLarge.Limit))
			return
		}
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	view, uploadErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:           file,
		Type:             r.FormValue("type"),
		OriginalFilename: header.Filename,
		Mime:             contentType,
		Size:             header.Size,
	})
	if uploadErr != nil {
		errors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// List обрабатывает GET /api/v1/assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	views, assetErr := h.assetSvc.List(r.Context())
	if assetErr != nil {
		errors.WriteError(w, assetErr.StatusCode, assetErr.Code, assetErr.Message)
		return
	}

	// Ответ — массив без обёртки: List всегда возвращает не-nil срез
	writeJSON(w, http.StatusOK, views)
}

// Get обрабатывает GET /api/v1/assets/{id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, assetErr := h.assetSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if assetErr != nil {
		errors.WriteError(w, assetErr.StatusCode, assetErr.Code, assetErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Delete обрабатывает DELETE /api/v1/assets/{id}.
func (h *AssetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if assetErr := h.assetSvc.Delete(r.Context(), chi.URLParam(r, "id")); assetErr != nil {
		errors.WriteError(w, assetErr.StatusCode, assetErr.Code, assetErr.Message)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream обрабатывает GET|HEAD /api/v1/assets/{id}/stream.
func (h *AssetsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if streamErr := h.streamSvc.ServeAsset(w, r, chi.URLParam(r, "id"), false); streamErr != nil {
		errors.WriteError(w, streamErr.StatusCode, streamErr.Code, streamErr.Message)
	}
}

// Download обрабатывает GET|HEAD /api/v1/assets/{id}/download.
// Отличается от Stream заголовком Content-Disposition и
// MIME-переопределением для glb.
func (h *AssetsHandler) Download(w http.ResponseWriter, r *http.Request) {
	if streamErr := h.streamSvc.ServeAsset(w, r, chi.URLParam(r, "id"), true); streamErr != nil {
		errors.WriteError(w, streamErr.StatusCode, streamErr.Code, streamErr.Message)
	}
}

// UniversalMP4 обрабатывает GET|HEAD /api/v1/assets/{id}/mp4/universal.mp4.
func (h *AssetsHandler) UniversalMP4(w http.ResponseWriter, r *http.Request) {
	if streamErr := h.streamSvc.ServeUniversalMP4(w, r, chi.URLParam(r, "id")); streamErr != nil {
		errors.WriteError(w, streamErr.StatusCode, streamErr.Code, streamErr.Message)
	}
}

// writeJSON пишет JSON-ответ со статусом status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
