// jobs.go — HTTP handlers очереди заданий устройств.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/service"
)

// JobsHandler — обработчик endpoints заданий.
type JobsHandler struct {
	jobSvc *service.JobService
}

// NewJobsHandler создаёт обработчик endpoints заданий.
func NewJobsHandler(jobSvc *service.JobService) *JobsHandler {
	return &JobsHandler{jobSvc: jobSvc}
}

// enqueueRequest — тело POST /api/v1/devices/{deviceId}/jobs.
type enqueueRequest struct {
	AssetID string          `json:"assetId"`
	Action  model.JobAction `json:"action"`
}

// Enqueue обрабатывает POST /api/v1/devices/{deviceId}/jobs.
func (h *JobsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, "Некорректное JSON-тело запроса")
		return
	}

	job, jobErr := h.jobSvc.Enqueue(r.Context(), chi.URLParam(r, "deviceId"), req.AssetID, req.Action)
	if jobErr != nil {
		errors.WriteError(w, jobErr.StatusCode, jobErr.Code, jobErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// List обрабатывает GET /api/v1/devices/{deviceId}/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, jobErr := h.jobSvc.ListForDevice(r.Context(), chi.URLParam(r, "deviceId"))
	if jobErr != nil {
		errors.WriteError(w, jobErr.StatusCode, jobErr.Code, jobErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Next обрабатывает GET /api/v1/devices/{deviceId}/jobs/next.
// Пустая очередь — не ошибка: {"job": null}.
func (h *JobsHandler) Next(w http.ResponseWriter, r *http.Request) {
	descriptor, jobErr := h.jobSvc.NextFor(r.Context(), chi.URLParam(r, "deviceId"))
	if jobErr != nil {
		errors.WriteError(w, jobErr.StatusCode, jobErr.Code, jobErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"job": descriptor})
}

// progressRequest — тело POST .../jobs/{jobId}/progress.
type progressRequest struct {
	Progress int `json:"progress"`
}

// Progress обрабатывает POST /api/v1/devices/{deviceId}/jobs/{jobId}/progress.
func (h *JobsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, "Некорректное JSON-тело запроса")
		return
	}

	job, jobErr := h.jobSvc.Progress(r.Context(),
		chi.URLParam(r, "deviceId"), chi.URLParam(r, "jobId"), req.Progress)
	if jobErr != nil {
		errors.WriteError(w, jobErr.StatusCode, jobErr.Code, jobErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// completeRequest — тело POST .../jobs/{jobId}/complete.
type completeRequest struct {
	Success bool `json:"success"`
}

// Complete обрабатывает POST /api/v1/devices/{deviceId}/jobs/{jobId}/complete.
func (h *JobsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, "Некорректное JSON-тело запроса")
		return
	}

	job, jobErr := h.jobSvc.Complete(r.Context(),
		chi.URLParam(r, "deviceId"), chi.URLParam(r, "jobId"), req.Success)
	if jobErr != nil {
		errors.WriteError(w, jobErr.StatusCode, jobErr.Code, jobErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
