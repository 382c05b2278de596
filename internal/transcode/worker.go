// worker.go — пул воркеров транскодирования.
//
// Задачи приходят из буферизованного канала и выполняются вне пути
// HTTP-запроса: загрузка возвращается клиенту сразу, а результат
// транскодирования наблюдаем только через последующие чтения meta.json.
// Ошибка любой стадии терминальна — повторов нет. Ошибка транскодирования
// никогда не влияет на доступность оригинальных байтов ассета.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
)

// Task — задача транскодирования одного ассета.
type Task struct {
	// AssetID — идентификатор ассета
	AssetID string
	// InputPath — временная копия загруженных байтов (удаляется воркером)
	InputPath string
	// Mime — заявленный MIME-тип оригинала
	Mime string
}

// Config — параметры пула транскодирования.
type Config struct {
	Workers     int
	QueueSize   int
	FFmpegPath  string
	FFprobePath string
	TmpDir      string
}

// MetaInvalidator сбрасывает закэшированные метаданные ассета
// после записи результата транскодирования в meta.json.
type MetaInvalidator interface {
	Delete(assetID string)
}

// Pool — ограниченный пул воркеров ffmpeg.
type Pool struct {
	cfg        Config
	mutator    *docstore.Mutator
	invalidate MetaInvalidator
	tasks      chan Task
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewPool создаёт пул. Start запускает воркеров.
func NewPool(cfg Config, mutator *docstore.Mutator, invalidate MetaInvalidator, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:        cfg,
		mutator:    mutator,
		invalidate: invalidate,
		tasks:      make(chan Task, cfg.QueueSize),
		logger:     logger.With(slog.String("component", "transcode_pool")),
	}
}

// Start запускает воркеров. Воркеры живут до отмены ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					p.process(ctx, task)
				}
			}
		}()
	}
	p.logger.Info("Пул транскодирования запущен",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_size", p.cfg.QueueSize),
	)
}

// Stop дожидается завершения воркеров (запущенные задачи доделываются
// до отмены ctx, переданного в Start).
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("Пул транскодирования остановлен")
}

// Enqueue ставит задачу в очередь без блокировки пути загрузки.
// Переполненная очередь — терминальная ошибка задачи: статус failed
// записывается в метаданные тем же путём, что и ошибки ffmpeg.
func (p *Pool) Enqueue(ctx context.Context, task Task) {
	select {
	case p.tasks <- task:
	default:
		p.logger.Warn("Очередь транскодирования переполнена",
			slog.String("asset_id", task.AssetID),
		)
		os.Remove(task.InputPath)
		p.recordFailure(ctx, task.AssetID, "очередь транскодирования переполнена")
	}
}

// process выполняет одну задачу: probe → ffmpeg → запись результата.
// Временные входной и выходной файлы удаляются на любом пути выхода.
func (p *Pool) process(ctx context.Context, task Task) {
	defer os.Remove(task.InputPath)

	outPath := filepath.Join(p.cfg.TmpDir, "transcode-"+uuid.New().String()+".mp4")
	defer os.Remove(outPath)

	start := time.Now()

	info, err := Probe(ctx, p.cfg.FFprobePath, task.InputPath)
	if err != nil {
		p.fail(ctx, task.AssetID, fmt.Errorf("probe: %w", err))
		return
	}

	args := BuildArgs(task.InputPath, outPath, info)
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		p.fail(ctx, task.AssetID, fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.Bytes(), 512)))
		return
	}

	out, err := os.Open(outPath)
	if err != nil {
		p.fail(ctx, task.AssetID, fmt.Errorf("открытие результата: %w", err))
		return
	}
	defer out.Close()

	// Если ассет удалён во время транскодирования, запись уйдёт
	// под уже очищенный префикс — принятый крайний случай.
	if _, err := p.mutator.Store().Put(ctx, model.MP4Key(task.AssetID), "video/mp4", out); err != nil {
		p.fail(ctx, task.AssetID, fmt.Errorf("запись mp4: %w", err))
		return
	}

	if err := p.updateMeta(ctx, task.AssetID, &model.TranscodeInfo{
		Status: model.TranscodeReady,
		Variants: &model.TranscodeVariants{
			MP4: model.UniversalMP4URL(task.AssetID),
		},
		UpdatedAt: time.Now().UnixMilli(),
	}); err != nil {
		p.logger.Error("Ошибка записи результата транскодирования",
			slog.String("asset_id", task.AssetID),
			slog.String("error", err.Error()),
		)
		return
	}

	middleware.TranscodeJobsTotal.WithLabelValues("ready").Inc()
	p.logger.Info("Транскодирование завершено",
		slog.String("asset_id", task.AssetID),
		slog.Bool("remux_only", info.VideoCompliant() && info.AudioCompliant()),
		slog.Duration("duration", time.Since(start)),
	)
}

// fail записывает терминальную ошибку задачи в метаданные ассета.
func (p *Pool) fail(ctx context.Context, assetID string, cause error) {
	p.logger.Error("Ошибка транскодирования",
		slog.String("asset_id", assetID),
		slog.String("error", cause.Error()),
	)
	p.recordFailure(ctx, assetID, cause.Error())
}

func (p *Pool) recordFailure(ctx context.Context, assetID, message string) {
	middleware.TranscodeJobsTotal.WithLabelValues("failed").Inc()
	if err := p.updateMeta(ctx, assetID, &model.TranscodeInfo{
		Status:    model.TranscodeFailed,
		Error:     message,
		UpdatedAt: time.Now().UnixMilli(),
	}); err != nil {
		p.logger.Error("Ошибка записи статуса транскодирования",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
	}
}

// errAssetGone — ассет удалён, обновлять нечего.
var errAssetGone = fmt.Errorf("ассет удалён")

// updateMeta прописывает результат транскодирования в meta.json через
// сериализованный мутатор. Удалённый ассет — не ошибка.
func (p *Pool) updateMeta(ctx context.Context, assetID string, result *model.TranscodeInfo) error {
	_, err := docstore.Update(ctx, p.mutator, model.MetaKey(assetID), model.AssetMeta{},
		func(meta model.AssetMeta) (model.AssetMeta, error) {
			if meta.ID == "" {
				return meta, errAssetGone
			}
			meta.Transcode = result
			return meta, nil
		})
	if err == errAssetGone {
		return nil
	}
	if err == nil {
		p.invalidate.Delete(assetID)
	}
	return err
}

// tail возвращает последние n байт буфера (для коротких сообщений об ошибке).
func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
