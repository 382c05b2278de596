// asset.go — сервис чтения и удаления ассетов.
package service

import (
	"context"
	"fmt"
	"log/slog"

	apierrors "github.com/immerse-zhaw/asset-hub/internal/api/errors"
	"github.com/immerse-zhaw/asset-hub/internal/api/middleware"
	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
	"github.com/immerse-zhaw/asset-hub/internal/storage/docstore"
)

// AssetView — ассет в представлении API: метаданные плюс публичные URL.
type AssetView struct {
	model.AssetMeta
	StreamURL   string `json:"streamUrl"`
	DownloadURL string `json:"downloadUrl"`

	// UniversalMP4URL — только для видео; до готовности
	// транскодирования URL отвечает 404
	UniversalMP4URL string `json:"universalMp4Url,omitempty"`
}

// newAssetView строит представление ассета с публичными URL.
func newAssetView(meta *model.AssetMeta) AssetView {
	view := AssetView{
		AssetMeta:   *meta,
		StreamURL:   model.StreamURL(meta.ID),
		DownloadURL: model.DownloadURL(meta.ID),
	}
	if meta.IsVideo() {
		view.UniversalMP4URL = model.UniversalMP4URL(meta.ID)
	}
	return view
}

// AssetError — ошибка операции над ассетом с HTTP-кодом.
type AssetError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AssetService — сервис чтения и удаления ассетов.
type AssetService struct {
	mutator *docstore.Mutator
	cache   *MetaCache
	logger  *slog.Logger
}

// NewAssetService создаёт сервис ассетов.
func NewAssetService(mutator *docstore.Mutator, cache *MetaCache, logger *slog.Logger) *AssetService {
	return &AssetService{
		mutator: mutator,
		cache:   cache,
		logger:  logger.With(slog.String("component", "asset_service")),
	}
}

// Meta возвращает полные метаданные ассета или nil, если ассета нет.
// Ошибка возвращается только при сбое хранилища.
func (s *AssetService) Meta(ctx context.Context, assetID string) (*model.AssetMeta, error) {
	if meta, ok := s.cache.Get(assetID); ok {
		return meta, nil
	}

	meta, err := docstore.Read(ctx, s.mutator.Store(), model.MetaKey(assetID), model.AssetMeta{})
	if err != nil {
		return nil, err
	}
	if meta.ID == "" {
		// Отсутствующий или повреждённый meta.json — ассета нет
		return nil, nil
	}

	s.cache.Set(assetID, &meta)
	return &meta, nil
}

// Get возвращает представление ассета для API.
func (s *AssetService) Get(ctx context.Context, assetID string) (*AssetView, *AssetError) {
	meta, err := s.Meta(ctx, assetID)
	if err != nil {
		s.logger.Error("Ошибка чтения метаданных",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return nil, assetInternalError("Ошибка чтения метаданных")
	}
	if meta == nil {
		return nil, assetNotFound(assetID)
	}

	view := newAssetView(meta)
	return &view, nil
}

// List возвращает все ассеты. Каждая запись индекса обогащается
// статусом транскодирования из meta.json: индекс хранит только
// стабильную проекцию, а статус меняется фоновым воркером.
func (s *AssetService) List(ctx context.Context) ([]AssetView, *AssetError) {
	listings, err := docstore.Read(ctx, s.mutator.Store(), model.AssetIndexKey, []model.AssetListing{})
	if err != nil {
		s.logger.Error("Ошибка чтения индекса ассетов", slog.String("error", err.Error()))
		return nil, assetInternalError("Ошибка чтения индекса ассетов")
	}

	views := make([]AssetView, 0, len(listings))
	for _, listing := range listings {
		meta, err := s.Meta(ctx, listing.ID)
		if err != nil {
			// Сбой чтения meta.json: отдаём проекцию без обогащения
			views = append(views, newAssetView(&model.AssetMeta{
				ID:               listing.ID,
				Type:             listing.Type,
				OriginalFilename: listing.OriginalFilename,
				Mime:             listing.Mime,
				SizeBytes:        listing.SizeBytes,
			}))
			continue
		}
		if meta == nil {
			// Осиротевшая запись индекса (ассет удалён) — пропускаем
			continue
		}
		views = append(views, newAssetView(meta))
	}
	return views, nil
}

// Delete удаляет ассет: всё поддерево ключей и запись индекса.
// Ошибка чистки индекса не откатывает удаление байтов — поддерево
// уже снесено, осиротевшая запись индекса отфильтруется при листинге.
func (s *AssetService) Delete(ctx context.Context, assetID string) *AssetError {
	meta, err := s.Meta(ctx, assetID)
	if err != nil {
		s.logger.Error("Ошибка чтения метаданных",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		return assetInternalError("Ошибка чтения метаданных")
	}
	if meta == nil {
		middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
		return assetNotFound(assetID)
	}

	if err := s.mutator.Store().DeleteTree(ctx, model.AssetPrefix(assetID)); err != nil {
		s.logger.Error("Ошибка удаления ассета",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		return assetInternalError("Ошибка удаления ассета")
	}

	s.cache.Delete(assetID)

	index, err := docstore.Update(ctx, s.mutator, model.AssetIndexKey, []model.AssetListing{},
		func(listings []model.AssetListing) ([]model.AssetListing, error) {
			filtered := listings[:0]
			for _, l := range listings {
				if l.ID != assetID {
					filtered = append(filtered, l)
				}
			}
			return filtered, nil
		})
	if err != nil {
		// Байты удалены, запись индекса осталась — не откатываем
		s.logger.Warn("Ошибка чистки индекса после удаления",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
	} else {
		middleware.AssetsTotal.Set(float64(len(index)))
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Ассет удалён", slog.String("asset_id", assetID))
	return nil
}

func assetNotFound(assetID string) *AssetError {
	return &AssetError{
		StatusCode: 404,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Ассет %s не найден", assetID),
	}
}

func assetInternalError(msg string) *AssetError {
	return &AssetError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    msg,
	}
}
