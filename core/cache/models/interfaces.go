package models

import (
	"github.com/tristendillon/pytrace/core/models"
)

// ContentCacheInterface holds file text for the lifetime of a trace (Layer 1)
type ContentCacheInterface interface {
	// Read returns the file content, loading it on a miss
	Read(filePath string) (*ContentEntry, error)

	// Invalidate drops the entry for a file
	Invalidate(filePath string)

	GetStats() *CacheStats
}

// ParseCacheInterface manages parsed import sets (Layer 2)
type ParseCacheInterface interface {
	SetParsedFile(filePath string, parsed *models.ParsedFile) error
	GetParsedFile(filePath string) (*models.ParsedFile, bool)
	InvalidateParse(filePath string) error
	GetStats() *CacheStats
}

// ClassificationCacheInterface memoises classifications per (name, root) (Layer 3)
type ClassificationCacheInterface interface {
	GetClassification(name, root string) (models.Classification, bool)

	// SetClassification stores c unless an entry exists. It reports whether
	// this call stored the value.
	SetClassification(name, root string, c models.Classification) bool

	GetStats() *CacheStats
}

// PackageCacheInterface memoises the confirmed requirements of a package (Layer 4)
type PackageCacheInterface interface {
	// Do returns the cached requirements of name, running fn at most once per
	// name even under concurrent callers
	Do(name string, fn func() ([]string, error)) ([]string, error)

	GetStats() *CacheStats
}

// DependencyGraphInterface records edges discovered during a traversal (Layer 5)
type DependencyGraphInterface interface {
	// UpdateNode replaces the outgoing edges of id
	UpdateNode(id string, nodeType NodeType, dependencies []string) error

	// GetDependents returns the nodes with an edge to id
	GetDependents(id string) ([]string, error)

	// DetectCycles finds circular dependencies
	DetectCycles() ([][]string, error)

	GetStats() *CacheStats
}

// CacheManagerInterface bundles the layers owned by one resolver context
type CacheManagerInterface interface {
	GetParsedFile(filePath, relPath string) (*models.ParsedFile, error)
	Classifications() ClassificationCacheInterface
	Packages() PackageCacheInterface
	RecordImports(filePath string, dependencies []string)
	RecordRequirements(pkg string, requirements []string)
	RequiredBy(pkg string) []string
	Cycles() [][]string
	GetStats() map[string]*CacheStats
	LogStats()
}
