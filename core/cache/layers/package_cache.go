package layers

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tristendillon/pytrace/core/cache/models"
)

type packageEntry struct {
	requirements []string
	err          error
}

// PackageCache implements Layer 4: confirmed requirements per package
type PackageCache struct {
	entries map[string]packageEntry
	group   singleflight.Group
	mutex   sync.RWMutex
	stats   struct {
		hits   int64
		misses int64
	}
}

func NewPackageCache() *PackageCache {
	return &PackageCache{
		entries: make(map[string]packageEntry),
	}
}

// Do returns the memoised result for name, calling fn once on a miss.
// Errors are cached as well so a broken package is reported once.
func (pc *PackageCache) Do(name string, fn func() ([]string, error)) ([]string, error) {
	pc.mutex.Lock()
	if entry, ok := pc.entries[name]; ok {
		pc.stats.hits++
		pc.mutex.Unlock()
		return entry.requirements, entry.err
	}
	pc.stats.misses++
	pc.mutex.Unlock()

	v, err, _ := pc.group.Do(name, func() (interface{}, error) {
		pc.mutex.RLock()
		entry, ok := pc.entries[name]
		pc.mutex.RUnlock()
		if ok {
			return entry.requirements, entry.err
		}

		requirements, err := fn()
		pc.mutex.Lock()
		pc.entries[name] = packageEntry{requirements: requirements, err: err}
		pc.mutex.Unlock()
		return requirements, err
	})

	requirements, _ := v.([]string)
	return requirements, err
}

func (pc *PackageCache) GetStats() *models.CacheStats {
	pc.mutex.RLock()
	defer pc.mutex.RUnlock()

	return models.NewCacheStats(len(pc.entries), pc.stats.hits, pc.stats.misses)
}
