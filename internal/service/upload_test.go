package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/immerse-zhaw/asset-hub/internal/config"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
	"github.com/immerse-zhaw/asset-hub/internal/transcode"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — собранный сервисный слой поверх временного хранилища.
type testEnv struct {
	store   blob.Store
	mutator *docstore.Mutator
	cache   *MetaCache
	upload  *UploadService
	assets  *AssetService
	stream  *StreamService
	jobs    *JobService
}

// newTestEnv поднимает сервисы над локальным хранилищем в t.TempDir().
// Пул транскодирования создаётся без воркеров: задачи остаются в очереди.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}

	cfg := &config.Config{
		MaxFileSize:  1 << 20,
		TmpDir:       t.TempDir(),
		MetaCacheTTL: time.Minute,
	}

	logger := testLogger()
	mutator := docstore.NewMutator(store)
	cache := NewMetaCache(64, cfg.MetaCacheTTL)
	pool := transcode.NewPool(transcode.Config{
		Workers:   1,
		QueueSize: 8,
		TmpDir:    cfg.TmpDir,
	}, mutator, cache, logger)

	assets := NewAssetService(mutator, cache, logger)
	return &testEnv{
		store:   store,
		mutator: mutator,
		cache:   cache,
		upload:  NewUploadService(cfg, mutator, cache, pool, logger),
		assets:  assets,
		stream:  NewStreamService(store, assets, logger),
		jobs:    NewJobService(mutator, assets, logger),
	}
}

// uploadGLB загружает тестовый glb-ассет и возвращает его представление.
func uploadGLB(t *testing.T, env *testEnv, content []byte) *AssetView {
	t.Helper()

	view, uploadErr := env.upload.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(content),
		Type:             "glb",
		OriginalFilename: "model.glb",
		Mime:             "model/gltf-binary",
		Size:             int64(len(content)),
	})
	if uploadErr != nil {
		t.Fatalf("Ошибка загрузки: %v", uploadErr)
	}
	return view
}

func TestUpload_GLBSuccess(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("glTF binary content")

	view := uploadGLB(t, env, content)

	// SHA-256 посчитан над байтами при записи
	expected := sha256.Sum256(content)
	if view.SHA256 != hex.EncodeToString(expected[:]) {
		t.Errorf("sha256 = %s, ожидалось %s", view.SHA256, hex.EncodeToString(expected[:]))
	}
	if view.SizeBytes != int64(len(content)) {
		t.Errorf("sizeBytes = %d, ожидалось %d", view.SizeBytes, len(content))
	}
	if view.Transcode != nil {
		t.Error("glb не должен иметь блока transcode")
	}
	if view.UniversalMP4URL != "" {
		t.Error("glb не должен иметь universalMp4Url")
	}

	// Байты файла записаны под правильным ключом
	rc, err := env.store.GetStream(context.Background(), model.FileKey(view.ID), nil)
	if err != nil {
		t.Fatalf("Файл ассета не найден: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, content) {
		t.Error("Содержимое файла не совпадает с загруженным")
	}

	// Проекция попала в индекс
	index, err := docstore.Read(context.Background(), env.store, model.AssetIndexKey, []model.AssetListing{})
	if err != nil {
		t.Fatalf("Ошибка чтения индекса: %v", err)
	}
	if len(index) != 1 || index[0].ID != view.ID {
		t.Errorf("Неожиданное содержимое индекса: %+v", index)
	}
}

func TestUpload_VideoGetsProcessingStatus(t *testing.T) {
	env := newTestEnv(t)

	view, uploadErr := env.upload.Upload(context.Background(), UploadParams{
		Reader:           strings.NewReader("fake video bytes"),
		Type:             "video",
		OriginalFilename: "tour.mp4",
		Mime:             "video/mp4",
		Size:             16,
	})
	if uploadErr != nil {
		t.Fatalf("Ошибка загрузки: %v", uploadErr)
	}

	if view.Transcode == nil || view.Transcode.Status != model.TranscodeProcessing {
		t.Errorf("Видео должно получить transcode.status=processing, получено %+v", view.Transcode)
	}
	if view.UniversalMP4URL == "" {
		t.Error("Видео должно получить universalMp4Url")
	}
}

func TestUpload_ValidationBeforePersistence(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		params   UploadParams
		wantCode string
	}{
		{
			name: "glb_без_расширения",
			params: UploadParams{
				Reader: strings.NewReader("x"), Type: "glb",
				OriginalFilename: "model.bin", Mime: "application/octet-stream", Size: 1,
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "видео_с_не-видео_mime",
			params: UploadParams{
				Reader: strings.NewReader("x"), Type: "video",
				OriginalFilename: "doc.pdf", Mime: "application/pdf", Size: 1,
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "неизвестный_тип",
			params: UploadParams{
				Reader: strings.NewReader("x"), Type: "texture",
				OriginalFilename: "t.png", Mime: "image/png", Size: 1,
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "превышение_лимита",
			params: UploadParams{
				Reader: strings.NewReader("x"), Type: "glb",
				OriginalFilename: "big.glb", Mime: "model/gltf-binary", Size: 2 << 20,
			},
			wantCode: "FILE_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, uploadErr := env.upload.Upload(context.Background(), tt.params)
			if uploadErr == nil {
				t.Fatal("Ожидалась ошибка загрузки")
			}
			if uploadErr.Code != tt.wantCode {
				t.Errorf("Код ошибки = %s, ожидалось %s", uploadErr.Code, tt.wantCode)
			}
		})
	}

	// Отклонённые загрузки не оставляют следов в хранилище
	index, _ := docstore.Read(context.Background(), env.store, model.AssetIndexKey, []model.AssetListing{})
	if len(index) != 0 {
		t.Errorf("Индекс должен быть пуст после отклонённых загрузок: %+v", index)
	}
}

// TestUpload_VideoMimeVariants: помимо video/* принимаются
// Apple-контейнеры с application/-типами, без учёта регистра.
func TestUpload_VideoMimeVariants(t *testing.T) {
	env := newTestEnv(t)

	accepted := []struct {
		filename string
		mime     string
	}{
		{"clip.mov", "application/quicktime"},
		{"clip2.mov", "Application/QuickTime"},
		{"clip.m4v", "application/x-m4v"},
		{"clip2.m4v", "video/x-m4v"},
	}
	for _, tt := range accepted {
		_, uploadErr := env.upload.Upload(context.Background(), UploadParams{
			Reader:           strings.NewReader("mov bytes"),
			Type:             "video",
			OriginalFilename: tt.filename,
			Mime:             tt.mime,
			Size:             9,
		})
		if uploadErr != nil {
			t.Errorf("%s должен приниматься как видео: %v", tt.mime, uploadErr)
		}
	}
}

// TestUpload_TranscodeFailureKeepsOriginalServable: ошибка транскодирования
// (здесь — переполнение очереди пула) пишет failed в метаданные, но оригинал
// остаётся полностью доступным для стриминга.
func TestUpload_TranscodeFailureKeepsOriginalServable(t *testing.T) {
	store, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}

	cfg := &config.Config{
		MaxFileSize:  1 << 20,
		TmpDir:       t.TempDir(),
		MetaCacheTTL: time.Minute,
	}

	logger := testLogger()
	mutator := docstore.NewMutator(store)
	cache := NewMetaCache(64, cfg.MetaCacheTTL)
	// Очередь нулевой ёмкости: Enqueue сразу идёт по пути отказа
	pool := transcode.NewPool(transcode.Config{
		Workers:   1,
		QueueSize: 0,
		TmpDir:    cfg.TmpDir,
	}, mutator, cache, logger)

	assets := NewAssetService(mutator, cache, logger)
	upload := NewUploadService(cfg, mutator, cache, pool, logger)
	stream := NewStreamService(store, assets, logger)

	content := []byte("fake video bytes")
	ctx := context.Background()

	view, uploadErr := upload.Upload(ctx, UploadParams{
		Reader:           bytes.NewReader(content),
		Type:             "video",
		OriginalFilename: "tour.mp4",
		Mime:             "video/mp4",
		Size:             int64(len(content)),
	})
	if uploadErr != nil {
		t.Fatalf("Ошибка загрузки: %v", uploadErr)
	}

	// Статус failed с непустым сообщением об ошибке
	meta, metaErr := assets.Meta(ctx, view.ID)
	if metaErr != nil || meta == nil {
		t.Fatalf("Ошибка чтения метаданных: %v", metaErr)
	}
	if meta.Transcode == nil || meta.Transcode.Status != model.TranscodeFailed {
		t.Fatalf("Ожидался transcode.status=failed, получено %+v", meta.Transcode)
	}
	if meta.Transcode.Error == "" {
		t.Error("Сообщение об ошибке транскодирования не должно быть пустым")
	}

	// Оригинал по-прежнему отдаётся целиком
	r := httptest.NewRequest(http.MethodGet, view.StreamURL, nil)
	w := httptest.NewRecorder()
	if streamErr := stream.ServeAsset(w, r, view.ID, false); streamErr != nil {
		t.Fatalf("Стриминг оригинала не должен падать: %v", streamErr)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Статус = %d, ожидалось 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Error("Тело ответа не совпадает с оригинальными байтами")
	}
}

func TestAsset_GetListDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := uploadGLB(t, env, []byte("first"))
	second := uploadGLB(t, env, []byte("second"))

	// Get
	got, assetErr := env.assets.Get(ctx, first.ID)
	if assetErr != nil {
		t.Fatalf("Ошибка Get: %v", assetErr)
	}
	if got.ID != first.ID || got.SHA256 != first.SHA256 {
		t.Errorf("Get вернул не тот ассет: %+v", got)
	}

	// Get несуществующего
	if _, assetErr := env.assets.Get(ctx, "no-such-id"); assetErr == nil || assetErr.StatusCode != 404 {
		t.Errorf("Get несуществующего должен вернуть 404, получено %+v", assetErr)
	}

	// List
	views, assetErr := env.assets.List(ctx)
	if assetErr != nil {
		t.Fatalf("Ошибка List: %v", assetErr)
	}
	if len(views) != 2 {
		t.Fatalf("List вернул %d ассетов, ожидалось 2", len(views))
	}

	// Delete
	if assetErr := env.assets.Delete(ctx, first.ID); assetErr != nil {
		t.Fatalf("Ошибка Delete: %v", assetErr)
	}

	// Поддерево удалено целиком
	if exists, _ := env.store.Exists(ctx, model.FileKey(first.ID)); exists {
		t.Error("Файл ассета должен быть удалён")
	}
	if exists, _ := env.store.Exists(ctx, model.MetaKey(first.ID)); exists {
		t.Error("meta.json должен быть удалён")
	}

	// Повторное удаление — 404
	if assetErr := env.assets.Delete(ctx, first.ID); assetErr == nil || assetErr.StatusCode != 404 {
		t.Errorf("Повторное удаление должно вернуть 404, получено %+v", assetErr)
	}

	// Второй ассет не пострадал
	views, _ = env.assets.List(ctx)
	if len(views) != 1 || views[0].ID != second.ID {
		t.Errorf("После удаления должен остаться только второй ассет: %+v", views)
	}
}
