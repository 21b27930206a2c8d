package layers

import (
	"crypto/md5"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/logger"
)

// DefaultContentEntries bounds the content cache when no size is configured.
const DefaultContentEntries = 4096

// ContentCache implements Layer 1: source text kept in a bounded LRU
type ContentCache struct {
	entries *lru.Cache[string, *models.ContentEntry]
	// mu keeps replacing an entry and its byte count in step
	mu    sync.Mutex
	stats struct {
		hits   atomic.Int64
		misses atomic.Int64
		bytes  atomic.Int64
	}
}

// NewContentCache creates a content cache holding up to size files
func NewContentCache(size int) *ContentCache {
	if size <= 0 {
		size = DefaultContentEntries
	}
	cc := &ContentCache{}
	entries, err := lru.NewWithEvict[string, *models.ContentEntry](size, func(_ string, entry *models.ContentEntry) {
		cc.stats.bytes.Add(-entry.Size)
	})
	if err != nil {
		// size is always positive here
		panic(err)
	}
	cc.entries = entries
	return cc
}

// Read returns the content of filePath. A cached entry is reused while the
// file's size and modification time are unchanged.
func (cc *ContentCache) Read(filePath string) (*models.ContentEntry, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		cc.Invalidate(filePath)
		return nil, fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}

	if existing, ok := cc.entries.Get(filePath); ok {
		if stat.Size() == existing.Size && stat.ModTime().Equal(existing.ModTime) {
			cc.stats.hits.Add(1)
			return existing, nil
		}
		logger.Debug("ContentCache: %s changed on disk, reloading", filePath)
	}

	cc.stats.misses.Add(1)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	entry := &models.ContentEntry{
		FilePath:    filePath,
		ContentHash: fmt.Sprintf("%x", md5.Sum(data)),
		ModTime:     stat.ModTime(),
		Size:        int64(len(data)),
		Data:        data,
	}
	cc.store(entry)
	return entry, nil
}

func (cc *ContentCache) store(entry *models.ContentEntry) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if old, ok := cc.entries.Peek(entry.FilePath); ok {
		cc.stats.bytes.Add(-old.Size)
	}
	cc.entries.Add(entry.FilePath, entry)
	cc.stats.bytes.Add(entry.Size)
}

// Invalidate removes the entry for a file
func (cc *ContentCache) Invalidate(filePath string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.entries.Remove(filePath) {
		logger.Debug("ContentCache: Removed entry for %s", filePath)
	}
}

// GetStats returns cache statistics
func (cc *ContentCache) GetStats() *models.CacheStats {
	stats := models.NewCacheStats(cc.entries.Len(), cc.stats.hits.Load(), cc.stats.misses.Load())
	stats.Bytes = cc.stats.bytes.Load()
	return stats
}
