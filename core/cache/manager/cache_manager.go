package manager

import (
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/tristendillon/pytrace/core/ast"
	"github.com/tristendillon/pytrace/core/cache/layers"
	"github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/logger"
	coreModels "github.com/tristendillon/pytrace/core/models"
)

// CacheManager coordinates the cache layers of one resolver context
type CacheManager struct {
	content  models.ContentCacheInterface
	parse    models.ParseCacheInterface
	classes  models.ClassificationCacheInterface
	packages models.PackageCacheInterface
	files    models.DependencyGraphInterface
	requires models.DependencyGraphInterface
}

// NewCacheManager creates a cache manager with default implementations
func NewCacheManager(contentEntries int) *CacheManager {
	return &CacheManager{
		content:  layers.NewContentCache(contentEntries),
		parse:    layers.NewParseCache(),
		classes:  layers.NewClassificationCache(),
		packages: layers.NewPackageCache(),
		files:    layers.NewDependencyGraph(),
		requires: layers.NewDependencyGraph(),
	}
}

// GetParsedFile returns the import set of a file, reading and parsing it on
// a miss. A cached parse is reused only while the content hash matches.
func (cm *CacheManager) GetParsedFile(filePath, relPath string) (*coreModels.ParsedFile, error) {
	entry, err := cm.content.Read(filePath)
	if err != nil {
		cm.parse.InvalidateParse(filePath)
		return nil, err
	}

	if parsed, exists := cm.parse.GetParsedFile(filePath); exists && parsed.ContentHash == entry.ContentHash {
		return parsed, nil
	}

	parsed := ast.ParseSource(filePath, relPath, entry.Data)
	parsed.ContentHash = entry.ContentHash
	if err := cm.parse.SetParsedFile(filePath, parsed); err != nil {
		logger.Debug("CacheManager: Failed to store parse of %s: %v", filePath, err)
	}
	return parsed, nil
}

func (cm *CacheManager) Classifications() models.ClassificationCacheInterface {
	return cm.classes
}

func (cm *CacheManager) Packages() models.PackageCacheInterface {
	return cm.packages
}

// RecordImports stores the resolved file edges of filePath
func (cm *CacheManager) RecordImports(filePath string, dependencies []string) {
	if err := cm.files.UpdateNode(filePath, models.FileNode, dependencies); err != nil {
		logger.Debug("CacheManager: Failed to record imports of %s: %v", filePath, err)
	}
}

// RecordRequirements stores the confirmed requirement edges of pkg
func (cm *CacheManager) RecordRequirements(pkg string, requirements []string) {
	if err := cm.requires.UpdateNode(pkg, models.PackageNode, requirements); err != nil {
		logger.Debug("CacheManager: Failed to record requirements of %s: %v", pkg, err)
	}
}

// RequiredBy returns the sorted packages recorded as requiring pkg
func (cm *CacheManager) RequiredBy(pkg string) []string {
	dependents, err := cm.requires.GetDependents(pkg)
	if err != nil {
		logger.Debug("CacheManager: Failed to look up dependents of %s: %v", pkg, err)
		return nil
	}
	sort.Strings(dependents)
	return dependents
}

// Cycles returns the import cycles followed by the requirement cycles seen so far
func (cm *CacheManager) Cycles() [][]string {
	var cycles [][]string
	for _, graph := range []models.DependencyGraphInterface{cm.files, cm.requires} {
		found, err := graph.DetectCycles()
		if err != nil {
			logger.Debug("CacheManager: Cycle detection failed: %v", err)
			continue
		}
		cycles = append(cycles, found...)
	}
	return cycles
}

// GetStats returns statistics for every layer
func (cm *CacheManager) GetStats() map[string]*models.CacheStats {
	return map[string]*models.CacheStats{
		"content":        cm.content.GetStats(),
		"parse":          cm.parse.GetStats(),
		"classification": cm.classes.GetStats(),
		"package":        cm.packages.GetStats(),
		"file_graph":     cm.files.GetStats(),
		"package_graph":  cm.requires.GetStats(),
	}
}

// LogStats writes one debug line per layer
func (cm *CacheManager) LogStats() {
	stats := cm.GetStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := stats[name]
		switch {
		case s.Bytes > 0:
			logger.Debug("Cache %s: %s entries (%s), hits=%s misses=%s (%.1f%%)",
				name, humanize.Comma(int64(s.TotalEntries)), humanize.Bytes(uint64(s.Bytes)),
				humanize.Comma(s.CacheHits), humanize.Comma(s.CacheMisses), s.HitRate)
		case s.Edges > 0:
			logger.Debug("Cache %s: %s nodes, %s edges",
				name, humanize.Comma(int64(s.TotalEntries)), humanize.Comma(int64(s.Edges)))
		default:
			logger.Debug("Cache %s: %s entries, hits=%s misses=%s (%.1f%%)",
				name, humanize.Comma(int64(s.TotalEntries)),
				humanize.Comma(s.CacheHits), humanize.Comma(s.CacheMisses), s.HitRate)
		}
	}
}
