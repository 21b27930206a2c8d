package layers

import (
	"sync"

	"github.com/tristendillon/pytrace/core/cache/models"
	coreModels "github.com/tristendillon/pytrace/core/models"
)

type classificationKey struct {
	name string
	root string
}

// ClassificationCache implements Layer 3: import name classifications
type ClassificationCache struct {
	entries map[classificationKey]coreModels.Classification
	mutex   sync.RWMutex
	stats   struct {
		hits   int64
		misses int64
	}
}

func NewClassificationCache() *ClassificationCache {
	return &ClassificationCache{
		entries: make(map[classificationKey]coreModels.Classification),
	}
}

func (cc *ClassificationCache) GetClassification(name, root string) (coreModels.Classification, bool) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	c, exists := cc.entries[classificationKey{name, root}]
	if exists {
		cc.stats.hits++
	} else {
		cc.stats.misses++
	}
	return c, exists
}

func (cc *ClassificationCache) SetClassification(name, root string, c coreModels.Classification) bool {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	key := classificationKey{name, root}
	if _, exists := cc.entries[key]; exists {
		return false
	}
	cc.entries[key] = c
	return true
}

func (cc *ClassificationCache) GetStats() *models.CacheStats {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()

	return models.NewCacheStats(len(cc.entries), cc.stats.hits, cc.stats.misses)
}
