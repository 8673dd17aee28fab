// Package cache provides caching for rendered heatmaps and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	ImageTTL         time.Duration
	ResultCacheSize  int
}

// Manager manages the rendered-image and result caches.
type Manager struct {
	imageCache  *bigcache.BigCache
	resultCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	imageCacheConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.ImageTTL,
		CleanWindow:        cfg.ImageTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       512 * 1024, // rendered heatmaps are larger than tiles
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}

	imageCache, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	resultCache, err := lru.New[string, []byte](cfg.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Manager{
		imageCache:  imageCache,
		resultCache: resultCache,
	}, nil
}

// GetImage retrieves a rendered heatmap from cache.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	data, err := m.imageCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetImage stores a rendered heatmap in cache.
func (m *Manager) SetImage(key string, data []byte) error {
	return m.imageCache.Set(key, data)
}

// GetResult retrieves a computed heatmap payload from cache.
func (m *Manager) GetResult(key string) ([]byte, bool) {
	return m.resultCache.Get(key)
}

// SetResult stores a computed heatmap payload in cache.
func (m *Manager) SetResult(key string, data []byte) {
	m.resultCache.Add(key, data)
}

// HeatmapKey generates a cache key for one heatmap request. The gene list is
// order-significant, so it is hashed as given.
func HeatmapKey(dataset string, genes []string, threshold float64, sortByPattern bool, maxRows, maxCols int) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(genes, "\n")))
	fmt.Fprintf(h, "|t=%g|sort=%v|r=%d|c=%d", threshold, sortByPattern, maxRows, maxCols)
	return fmt.Sprintf("heatmap:%s:%s", dataset, hex.EncodeToString(h.Sum(nil))[:16])
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"image_cache_len":  m.imageCache.Len(),
		"image_cache_cap":  m.imageCache.Capacity(),
		"result_cache_len": m.resultCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.imageCache.Close()
}
