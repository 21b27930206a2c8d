package layers

import (
	"fmt"
	"sync"

	"github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/logger"
	coreModels "github.com/tristendillon/pytrace/core/models"
)

// ParseCache implements Layer 2: parsed import sets keyed by absolute path
type ParseCache struct {
	entries map[string]*coreModels.ParsedFile
	mutex   sync.RWMutex
	stats   struct {
		hits   int64
		misses int64
	}
}

// NewParseCache creates a new parse cache
func NewParseCache() *ParseCache {
	return &ParseCache{
		entries: make(map[string]*coreModels.ParsedFile),
	}
}

// SetParsedFile stores parsed file data
func (pc *ParseCache) SetParsedFile(filePath string, parsed *coreModels.ParsedFile) error {
	if parsed == nil {
		return fmt.Errorf("parsed file cannot be nil")
	}

	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	pc.entries[filePath] = parsed
	logger.Debug("ParseCache: Stored %d imports for %s", parsed.Imports.Len(), filePath)
	return nil
}

// GetParsedFile retrieves parsed file data
func (pc *ParseCache) GetParsedFile(filePath string) (*coreModels.ParsedFile, bool) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	parsed, exists := pc.entries[filePath]
	if exists {
		pc.stats.hits++
	} else {
		pc.stats.misses++
	}
	return parsed, exists
}

// InvalidateParse removes parsed data for a file
func (pc *ParseCache) InvalidateParse(filePath string) error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if _, exists := pc.entries[filePath]; exists {
		delete(pc.entries, filePath)
		logger.Debug("ParseCache: Invalidated parsed data for %s", filePath)
	}
	return nil
}

// GetStats returns cache statistics
func (pc *ParseCache) GetStats() *models.CacheStats {
	pc.mutex.RLock()
	defer pc.mutex.RUnlock()

	return models.NewCacheStats(len(pc.entries), pc.stats.hits, pc.stats.misses)
}
