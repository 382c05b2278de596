// cache.go — LRU-кэш метаданных ассетов с TTL.
//
// Метаданные читаются на каждый запрос стриминга и выдачи заданий;
// кэш снимает повторные чтения meta.json из хранилища. Инвалидация
// при удалении ассета и по истечении TTL.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/immerse-zhaw/asset-hub/internal/domain/model"
)

var (
	// cacheHitsTotal — попадания в кэш метаданных.
	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_meta_cache_hits_total",
			Help: "Количество попаданий в кэш метаданных",
		},
	)

	// cacheMissesTotal — промахи кэша метаданных.
	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_meta_cache_misses_total",
			Help: "Количество промахов кэша метаданных",
		},
	)
)

// MetaCache — кэш метаданных ассетов поверх expirable LRU.
type MetaCache struct {
	lru *expirable.LRU[string, *model.AssetMeta]
}

// NewMetaCache создаёт кэш на size записей с временем жизни ttl.
func NewMetaCache(size int, ttl time.Duration) *MetaCache {
	return &MetaCache{
		lru: expirable.NewLRU[string, *model.AssetMeta](size, nil, ttl),
	}
}

// Get возвращает метаданные из кэша.
func (c *MetaCache) Get(assetID string) (*model.AssetMeta, bool) {
	meta, ok := c.lru.Get(assetID)
	if ok {
		cacheHitsTotal.Inc()
	} else {
		cacheMissesTotal.Inc()
	}
	return meta, ok
}

// Set сохраняет метаданные в кэш.
func (c *MetaCache) Set(assetID string, meta *model.AssetMeta) {
	c.lru.Add(assetID, meta)
}

// Delete удаляет запись из кэша (при удалении ассета
// и при изменении статуса транскодирования).
func (c *MetaCache) Delete(assetID string) {
	c.lru.Remove(assetID)
}
