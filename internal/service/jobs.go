// jobs.go — очередь заданий устройств поверх jobs/index.json.
//
// Все мутации списка заданий идут через сериализованный мутатор:
// конкурентные отчёты устройств не теряют записи друг друга.
// Задания не удаляются — терминальные остаются в списке как история.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apierrors "github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
)

// JobError — ошибка операции над заданием с HTTP-кодом.
type JobError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// JobAsset — сведения об ассете внутри дескриптора задания.
// Поле size (не sizeBytes): формат согласован с прошивкой устройств.
type JobAsset struct {
	ID          string          `json:"id"`
	Type        model.AssetType `json:"type"`
	Filename    string          `json:"filename"`
	SizeBytes   int64           `json:"size"`
	SHA256      string          `json:"sha256"`
	DownloadURL string          `json:"downloadUrl"`
}

// JobDescriptor — задание в форме, пригодной для выполнения устройством:
// идентификатор, действие и всё необходимое об ассете, включая
// контрольную сумму для верификации скачанных байтов.
type JobDescriptor struct {
	ID     string          `json:"id"`
	Action model.JobAction `json:"action"`
	Asset  JobAsset        `json:"asset"`
}

// JobService — сервис очереди заданий устройств.
type JobService struct {
	mutator *docstore.Mutator
	assets  *AssetService
	logger  *slog.Logger
}

// NewJobService создаёт сервис заданий.
func NewJobService(mutator *docstore.Mutator, assets *AssetService, logger *slog.Logger) *JobService {
	return &JobService{
		mutator: mutator,
		assets:  assets,
		logger:  logger.With(slog.String("component", "job_service")),
	}
}

// Enqueue ставит задание в очередь устройства.
// Существование ассета не проверяется: ассет может быть удалён
// до выдачи задания, проверка происходит в NextFor.
func (s *JobService) Enqueue(ctx context.Context, deviceID, assetID string, action model.JobAction) (*model.Job, *JobError) {
	if !model.IsValidAction(action) {
		return nil, &JobError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимое действие %q, допустимые: download, delete", action),
		}
	}
	if assetID == "" {
		return nil, &JobError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "assetId не задан",
		}
	}

	job := model.Job{
		ID:       uuid.New().String(),
		DeviceID: deviceID,
		AssetID:  assetID,
		Action:   action,
		Status:   model.JobQueued,
		Progress: 0,
	}

	_, err := docstore.Update(ctx, s.mutator, model.JobsIndexKey, []model.Job{},
		func(jobs []model.Job) ([]model.Job, error) {
			return append(jobs, job), nil
		})
	if err != nil {
		s.logger.Error("Ошибка записи задания",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("job_enqueue", "error").Inc()
		return nil, jobInternalError("Ошибка записи задания")
	}

	middleware.OperationsTotal.WithLabelValues("job_enqueue", "success").Inc()
	s.logger.Info("Задание поставлено в очередь",
		slog.String("job_id", job.ID),
		slog.String("device_id", deviceID),
		slog.String("asset_id", assetID),
		slog.String("action", string(action)),
	)
	return &job, nil
}

// ListForDevice возвращает все задания устройства, включая терминальные.
func (s *JobService) ListForDevice(ctx context.Context, deviceID string) ([]model.Job, *JobError) {
	jobs, err := docstore.Read(ctx, s.mutator.Store(), model.JobsIndexKey, []model.Job{})
	if err != nil {
		s.logger.Error("Ошибка чтения списка заданий", slog.String("error", err.Error()))
		return nil, jobInternalError("Ошибка чтения списка заданий")
	}

	result := make([]model.Job, 0)
	for _, j := range jobs {
		if j.DeviceID == deviceID {
			result = append(result, j)
		}
	}
	return result, nil
}

// NextFor выдаёт устройству первое queued-задание в порядке постановки.
// Возвращает nil без ошибки, когда очередь пуста или метаданные ассета
// первого задания отсутствуют (ассет удалён после постановки).
func (s *JobService) NextFor(ctx context.Context, deviceID string) (*JobDescriptor, *JobError) {
	jobs, err := docstore.Read(ctx, s.mutator.Store(), model.JobsIndexKey, []model.Job{})
	if err != nil {
		s.logger.Error("Ошибка чтения списка заданий", slog.String("error", err.Error()))
		return nil, jobInternalError("Ошибка чтения списка заданий")
	}

	var next *model.Job
	for i := range jobs {
		if jobs[i].DeviceID == deviceID && jobs[i].Status == model.JobQueued {
			next = &jobs[i]
			break
		}
	}
	if next == nil {
		return nil, nil
	}

	meta, metaErr := s.assets.Meta(ctx, next.AssetID)
	if metaErr != nil {
		return nil, jobInternalError("Ошибка чтения метаданных ассета")
	}
	if meta == nil {
		// Ассет удалён после постановки задания
		s.logger.Warn("Задание ссылается на удалённый ассет",
			slog.String("job_id", next.ID),
			slog.String("asset_id", next.AssetID),
		)
		return nil, nil
	}

	// Видео устройство тянет через range-стриминг, glb — целиком
	downloadURL := model.DownloadURL(meta.ID)
	if meta.IsVideo() {
		downloadURL = model.StreamURL(meta.ID)
	}

	return &JobDescriptor{
		ID:     next.ID,
		Action: next.Action,
		Asset: JobAsset{
			ID:          meta.ID,
			Type:        meta.Type,
			Filename:    meta.OriginalFilename,
			SizeBytes:   meta.SizeBytes,
			SHA256:      meta.SHA256,
			DownloadURL: downloadURL,
		},
	}, nil
}

// Progress записывает отчёт устройства о прогрессе задания.
// Переводит задание в in_progress; значение прогресса перезаписывается
// как есть (last write wins), монотонность не гарантируется.
func (s *JobService) Progress(ctx context.Context, deviceID, jobID string, progress int) (*model.Job, *JobError) {
	if progress < 0 || progress > 100 {
		return nil, &JobError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Прогресс %d вне диапазона [0, 100]", progress),
		}
	}

	return s.mutate(ctx, deviceID, jobID, func(j *model.Job) *JobError {
		if err := j.TransitionTo(model.JobInProgress); err != nil {
			return jobInvalidTransition(j, model.JobInProgress)
		}
		j.Progress = progress
		return nil
	})
}

// Complete переводит задание в терминальный статус done или failed.
// Прогресс фиксируется в 100 независимо от исхода: устройство
// закончило работу над заданием.
func (s *JobService) Complete(ctx context.Context, deviceID, jobID string, success bool) (*model.Job, *JobError) {
	target := model.JobDone
	if !success {
		target = model.JobFailed
	}

	job, jErr := s.mutate(ctx, deviceID, jobID, func(j *model.Job) *JobError {
		if err := j.TransitionTo(target); err != nil {
			return jobInvalidTransition(j, target)
		}
		j.Progress = 100
		return nil
	})
	if jErr == nil {
		middleware.OperationsTotal.WithLabelValues("job_complete", string(target)).Inc()
	}
	return job, jErr
}

// mutate находит задание устройства и применяет fn под мьютексом документа.
func (s *JobService) mutate(ctx context.Context, deviceID, jobID string, fn func(*model.Job) *JobError) (*model.Job, *JobError) {
	var result model.Job
	var opErr *JobError

	_, err := docstore.Update(ctx, s.mutator, model.JobsIndexKey, []model.Job{},
		func(jobs []model.Job) ([]model.Job, error) {
			for i := range jobs {
				if jobs[i].ID == jobID && jobs[i].DeviceID == deviceID {
					if opErr = fn(&jobs[i]); opErr != nil {
						return jobs, opErr
					}
					result = jobs[i]
					return jobs, nil
				}
			}
			opErr = &JobError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Задание %s устройства %s не найдено", jobID, deviceID),
			}
			return jobs, opErr
		})
	if opErr != nil {
		return nil, opErr
	}
	if err != nil {
		s.logger.Error("Ошибка обновления задания",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, jobInternalError("Ошибка обновления задания")
	}
	return &result, nil
}

func jobInvalidTransition(j *model.Job, target model.JobStatus) *JobError {
	return &JobError{
		StatusCode: 409,
		Code:       apierrors.CodeInvalidTransition,
		Message:    fmt.Sprintf("Задание %s в терминальном статусе %s, переход в %s запрещён", j.ID, j.Status, target),
	}
}

func jobInternalError(msg string) *JobError {
	return &JobError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    msg,
	}
}
