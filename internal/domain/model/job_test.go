package model

import "testing"

// TestJobTransitions_HappyPath проверяет стандартный жизненный цикл задания.
func TestJobTransitions_HappyPath(t *testing.T) {
	j := &Job{ID: "j1", Status: JobQueued}

	if err := j.TransitionTo(JobInProgress); err != nil {
		t.Fatalf("queued → in_progress должен быть допустим: %v", err)
	}

	// Повторные отчёты о прогрессе — петля in_progress → in_progress
	if err := j.TransitionTo(JobInProgress); err != nil {
		t.Fatalf("in_progress → in_progress должен быть допустим: %v", err)
	}

	if err := j.TransitionTo(JobDone); err != nil {
		t.Fatalf("in_progress → done должен быть допустим: %v", err)
	}
	if !j.IsTerminal() {
		t.Error("done должен быть терминальным состоянием")
	}
}

// TestJobTransitions_QueuedToTerminal проверяет завершение без отчётов о прогрессе.
func TestJobTransitions_QueuedToTerminal(t *testing.T) {
	j := &Job{ID: "j1", Status: JobQueued}
	if err := j.TransitionTo(JobFailed); err != nil {
		t.Fatalf("queued → failed должен быть допустим: %v", err)
	}
}

// TestJobTransitions_TerminalAbsorbing проверяет, что из done/failed выхода нет.
func TestJobTransitions_TerminalAbsorbing(t *testing.T) {
	for _, terminal := range []JobStatus{JobDone, JobFailed} {
		j := &Job{ID: "j1", Status: terminal}
		for _, target := range []JobStatus{JobQueued, JobInProgress, JobDone, JobFailed} {
			if j.CanTransitionTo(target) {
				t.Errorf("переход %s → %s не должен быть допустим", terminal, target)
			}
		}
		if err := j.TransitionTo(JobInProgress); err == nil {
			t.Errorf("TransitionTo из %s должен вернуть ошибку", terminal)
		}
		if j.Status != terminal {
			t.Errorf("статус не должен меняться при отклонённом переходе: %s", j.Status)
		}
	}
}

// TestIsValidAction проверяет валидацию действий.
func TestIsValidAction(t *testing.T) {
	if !IsValidAction(ActionDownload) || !IsValidAction(ActionDelete) {
		t.Error("download и delete — допустимые действия")
	}
	if IsValidAction("reboot") {
		t.Error("reboot не является допустимым действием")
	}
}

// TestAssetListing проверяет, что проекция не содержит sha256.
func TestAssetListing(t *testing.T) {
	meta := &AssetMeta{
		ID:               "a1",
		Type:             AssetVideo,
		OriginalFilename: "tour.mp4",
		Mime:             "video/mp4",
		SizeBytes:        1234,
		SHA256:           "deadbeef",
	}

	listing := meta.Listing()
	if listing.ID != meta.ID || listing.Type != meta.Type ||
		listing.OriginalFilename != meta.OriginalFilename ||
		listing.Mime != meta.Mime || listing.SizeBytes != meta.SizeBytes {
		t.Error("проекция должна совпадать с метаданными по общим полям")
	}
}
