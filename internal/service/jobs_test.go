package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
)

func TestJobs_EnqueueAndNextFIFO(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := uploadGLB(t, env, []byte("first"))
	second := uploadGLB(t, env, []byte("second"))

	job1, jobErr := env.jobs.Enqueue(ctx, "dev-1", first.ID, model.ActionDownload)
	if jobErr != nil {
		t.Fatalf("Ошибка Enqueue: %v", jobErr)
	}
	if job1.Status != model.JobQueued || job1.Progress != 0 {
		t.Errorf("Новое задание должно быть queued с progress=0: %+v", job1)
	}

	job2, jobErr := env.jobs.Enqueue(ctx, "dev-1", second.ID, model.ActionDownload)
	if jobErr != nil {
		t.Fatalf("Ошибка Enqueue: %v", jobErr)
	}

	// Выдаётся первое задание в порядке постановки
	descriptor, jobErr := env.jobs.NextFor(ctx, "dev-1")
	if jobErr != nil {
		t.Fatalf("Ошибка NextFor: %v", jobErr)
	}
	if descriptor == nil || descriptor.ID != job1.ID {
		t.Fatalf("NextFor должен вернуть первое задание, получено %+v", descriptor)
	}
	if descriptor.Asset.SHA256 != first.SHA256 {
		t.Errorf("Дескриптор должен нести sha256 ассета для верификации")
	}
	// glb скачивается целиком
	if descriptor.Asset.DownloadURL != model.DownloadURL(first.ID) {
		t.Errorf("downloadUrl = %s, ожидался URL полного скачивания", descriptor.Asset.DownloadURL)
	}

	// Повторный NextFor без отчёта — то же задание (at-least-once)
	again, _ := env.jobs.NextFor(ctx, "dev-1")
	if again == nil || again.ID != job1.ID {
		t.Errorf("Повторный NextFor должен вернуть то же задание: %+v", again)
	}

	// Первое задание ушло в работу — очередь выдаёт следующее по порядку
	if _, jobErr := env.jobs.Progress(ctx, "dev-1", job1.ID, 10); jobErr != nil {
		t.Fatalf("Ошибка Progress: %v", jobErr)
	}
	next, jobErr := env.jobs.NextFor(ctx, "dev-1")
	if jobErr != nil {
		t.Fatalf("Ошибка NextFor: %v", jobErr)
	}
	if next == nil || next.ID != job2.ID {
		t.Fatalf("После перехода первого задания в in_progress должно выдаться второе: %+v", next)
	}

	// Второе завершено, первое всё ещё in_progress — queued-заданий нет
	if _, jobErr := env.jobs.Complete(ctx, "dev-1", job2.ID, true); jobErr != nil {
		t.Fatalf("Ошибка Complete: %v", jobErr)
	}
	empty, jobErr := env.jobs.NextFor(ctx, "dev-1")
	if jobErr != nil || empty != nil {
		t.Errorf("Очередь без queued-заданий должна быть пустой: %+v, %v", empty, jobErr)
	}

	// Чужая очередь пуста
	other, jobErr := env.jobs.NextFor(ctx, "dev-2")
	if jobErr != nil || other != nil {
		t.Errorf("Очередь другого устройства должна быть пустой: %+v, %v", other, jobErr)
	}
}

func TestJobs_VideoDescriptorUsesStreamURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, uploadErr := env.upload.Upload(ctx, UploadParams{
		Reader:           strings.NewReader("fake video"),
		Type:             "video",
		OriginalFilename: "tour.mp4",
		Mime:             "video/mp4",
		Size:             10,
	})
	if uploadErr != nil {
		t.Fatalf("Ошибка загрузки: %v", uploadErr)
	}

	if _, jobErr := env.jobs.Enqueue(ctx, "dev-1", view.ID, model.ActionDownload); jobErr != nil {
		t.Fatalf("Ошибка Enqueue: %v", jobErr)
	}

	descriptor, jobErr := env.jobs.NextFor(ctx, "dev-1")
	if jobErr != nil || descriptor == nil {
		t.Fatalf("Ошибка NextFor: %+v, %v", descriptor, jobErr)
	}
	if descriptor.Asset.DownloadURL != model.StreamURL(view.ID) {
		t.Errorf("Видео должно выдаваться через range-стриминг: %s", descriptor.Asset.DownloadURL)
	}
}

func TestJobs_NextForDeletedAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := uploadGLB(t, env, []byte("doomed"))
	if _, jobErr := env.jobs.Enqueue(ctx, "dev-1", view.ID, model.ActionDownload); jobErr != nil {
		t.Fatalf("Ошибка Enqueue: %v", jobErr)
	}

	if assetErr := env.assets.Delete(ctx, view.ID); assetErr != nil {
		t.Fatalf("Ошибка удаления: %v", assetErr)
	}

	// Задание осталось, но выдать его нечем: {job: null}, не ошибка
	descriptor, jobErr := env.jobs.NextFor(ctx, "dev-1")
	if jobErr != nil {
		t.Fatalf("NextFor не должен падать: %v", jobErr)
	}
	if descriptor != nil {
		t.Errorf("Задание на удалённый ассет не должно выдаваться: %+v", descriptor)
	}

	// Задание при этом не вычищено из списка
	jobs, _ := env.jobs.ListForDevice(ctx, "dev-1")
	if len(jobs) != 1 {
		t.Errorf("Задание должно сохраниться в списке: %+v", jobs)
	}
}

func TestJobs_ProgressAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := uploadGLB(t, env, []byte("content"))
	job, _ := env.jobs.Enqueue(ctx, "dev-1", view.ID, model.ActionDownload)

	// Отчёт о прогрессе переводит в in_progress
	updated, jobErr := env.jobs.Progress(ctx, "dev-1", job.ID, 50)
	if jobErr != nil {
		t.Fatalf("Ошибка Progress: %v", jobErr)
	}
	if updated.Status != model.JobInProgress || updated.Progress != 50 {
		t.Errorf("Задание = %+v, ожидалось in_progress/50", updated)
	}

	// Прогресс не монотонен: перезапись меньшим значением допустима
	updated, jobErr = env.jobs.Progress(ctx, "dev-1", job.ID, 30)
	if jobErr != nil || updated.Progress != 30 {
		t.Errorf("Перезапись прогресса должна проходить как есть: %+v, %v", updated, jobErr)
	}

	// Завершение с успехом
	done, jobErr := env.jobs.Complete(ctx, "dev-1", job.ID, true)
	if jobErr != nil {
		t.Fatalf("Ошибка Complete: %v", jobErr)
	}
	if done.Status != model.JobDone || done.Progress != 100 {
		t.Errorf("Задание = %+v, ожидалось done/100", done)
	}

	// Терминальный статус поглощающий: любые дальнейшие отчёты — 409
	if _, jobErr := env.jobs.Progress(ctx, "dev-1", job.ID, 10); jobErr == nil || jobErr.StatusCode != 409 {
		t.Errorf("Progress после done должен вернуть 409, получено %+v", jobErr)
	}
	if _, jobErr := env.jobs.Complete(ctx, "dev-1", job.ID, false); jobErr == nil || jobErr.StatusCode != 409 {
		t.Errorf("Complete после done должен вернуть 409, получено %+v", jobErr)
	}
}

func TestJobs_CompleteFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := uploadGLB(t, env, []byte("content"))
	job, _ := env.jobs.Enqueue(ctx, "dev-1", view.ID, model.ActionDelete)

	// queued → failed без промежуточного прогресса допустим
	failed, jobErr := env.jobs.Complete(ctx, "dev-1", job.ID, false)
	if jobErr != nil {
		t.Fatalf("Ошибка Complete: %v", jobErr)
	}
	if failed.Status != model.JobFailed || failed.Progress != 100 {
		t.Errorf("Задание = %+v, ожидалось failed/100", failed)
	}
}

func TestJobs_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, jobErr := env.jobs.Enqueue(ctx, "dev-1", "asset-1", "reboot"); jobErr == nil || jobErr.StatusCode != 400 {
		t.Errorf("Недопустимое действие должно вернуть 400: %+v", jobErr)
	}
	if _, jobErr := env.jobs.Enqueue(ctx, "dev-1", "", model.ActionDownload); jobErr == nil || jobErr.StatusCode != 400 {
		t.Errorf("Пустой assetId должен вернуть 400: %+v", jobErr)
	}
	if _, jobErr := env.jobs.Progress(ctx, "dev-1", "absent", 50); jobErr == nil || jobErr.StatusCode != 404 {
		t.Errorf("Прогресс несуществующего задания должен вернуть 404: %+v", jobErr)
	}
	view := uploadGLB(t, env, []byte("x"))
	job, _ := env.jobs.Enqueue(ctx, "dev-1", view.ID, model.ActionDownload)
	if _, jobErr := env.jobs.Progress(ctx, "dev-1", job.ID, 150); jobErr == nil || jobErr.StatusCode != 400 {
		t.Errorf("Прогресс вне [0,100] должен вернуть 400: %+v", jobErr)
	}
	// Чужое устройство не видит задание
	if _, jobErr := env.jobs.Progress(ctx, "dev-2", job.ID, 50); jobErr == nil || jobErr.StatusCode != 404 {
		t.Errorf("Задание чужого устройства должно давать 404: %+v", jobErr)
	}
}

// TestJobs_ConcurrentEnqueue проверяет отсутствие lost update
// при конкурентной постановке заданий.
func TestJobs_ConcurrentEnqueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := uploadGLB(t, env, []byte("content"))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			deviceID := fmt.Sprintf("dev-%d", i%4)
			if _, jobErr := env.jobs.Enqueue(ctx, deviceID, view.ID, model.ActionDownload); jobErr != nil {
				t.Errorf("Ошибка конкурентного Enqueue: %v", jobErr)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		jobs, jobErr := env.jobs.ListForDevice(ctx, fmt.Sprintf("dev-%d", i))
		if jobErr != nil {
			t.Fatalf("Ошибка ListForDevice: %v", jobErr)
		}
		total += len(jobs)
	}
	if total != n {
		t.Errorf("Сохранено %d заданий, ожидалось %d (lost update)", total, n)
	}
}
