// job.go — модель задания для устройства и конечный автомат его статусов.
//
// Жизненный цикл: queued → in_progress → {done, failed}.
// Повторные отчёты о прогрессе — петля in_progress → in_progress.
// done и failed — поглощающие состояния: дальнейшие переходы запрещены.
package model

import "fmt"

// JobAction — действие, которое устройство должно выполнить над ассетом.
type JobAction string

const (
	// ActionDownload — скачать ассет на устройство
	ActionDownload JobAction = "download"
	// ActionDelete — удалить ассет с устройства
	ActionDelete JobAction = "delete"
)

// IsValidAction проверяет допустимость действия.
func IsValidAction(a JobAction) bool {
	return a == ActionDownload || a == ActionDelete
}

// JobStatus — статус задания.
type JobStatus string

const (
	// JobQueued — задание создано, устройство его ещё не забрало
	JobQueued JobStatus = "queued"
	// JobInProgress — устройство отчиталось о прогрессе
	JobInProgress JobStatus = "in_progress"
	// JobDone — завершено успешно (терминальный)
	JobDone JobStatus = "done"
	// JobFailed — завершено с ошибкой (терминальный)
	JobFailed JobStatus = "failed"
)

// validJobTransitions — матрица допустимых переходов между статусами.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validJobTransitions = map[JobStatus]map[JobStatus]bool{
	JobQueued:     {JobInProgress: true, JobDone: true, JobFailed: true},
	JobInProgress: {JobInProgress: true, JobDone: true, JobFailed: true},
	JobDone:       {}, // Поглощающее состояние
	JobFailed:     {}, // Поглощающее состояние
}

// Job — задание в очереди устройства (элемент jobs/index.json).
// deviceId и assetId — внешние ссылки; существование ассета
// проверяется только при выдаче задания устройству.
type Job struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"deviceId"`
	AssetID  string    `json:"assetId"`
	Action   JobAction `json:"action"`
	Status   JobStatus `json:"status"`

	// Progress — процент выполнения [0,100]. Last write wins,
	// монотонность не гарантируется.
	Progress int `json:"progress"`
}

// IsTerminal проверяет, находится ли задание в поглощающем состоянии.
func (j *Job) IsTerminal() bool {
	return j.Status == JobDone || j.Status == JobFailed
}

// CanTransitionTo проверяет допустимость перехода в целевой статус.
func (j *Job) CanTransitionTo(target JobStatus) bool {
	transitions, ok := validJobTransitions[j.Status]
	if !ok {
		return false
	}
	return transitions[target]
}

// TransitionTo переводит задание в целевой статус.
// Возвращает ошибку при недопустимом переходе (из терминального состояния).
func (j *Job) TransitionTo(target JobStatus) error {
	if !j.CanTransitionTo(target) {
		return fmt.Errorf("недопустимый переход статуса задания: %s → %s", j.Status, target)
	}
	j.Status = target
	return nil
}
