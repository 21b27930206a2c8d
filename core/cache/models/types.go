package models

import (
	"time"
)

// NodeType represents the kind of node in a traversal graph
type NodeType int

const (
	FileNode NodeType = iota
	PackageNode
)

func (nt NodeType) String() string {
	switch nt {
	case FileNode:
		return "File"
	case PackageNode:
		return "Package"
	default:
		return "Unknown"
	}
}

// ContentEntry holds the raw text of a source file (Layer 1)
type ContentEntry struct {
	FilePath    string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`
	ModTime     time.Time `json:"mod_time"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
}

// DependencyNode represents a node in a traversal graph (Layer 5)
type DependencyNode struct {
	ID           string   `json:"id"`
	NodeType     NodeType `json:"node_type"`
	Dependencies []string `json:"dependencies"` // nodes this one imports or requires
	Dependents   []string `json:"dependents"`   // nodes that import or require this one
}

// CacheStats provides metrics about cache performance
type CacheStats struct {
	TotalEntries int       `json:"total_entries"`
	CacheHits    int64     `json:"cache_hits"`
	CacheMisses  int64     `json:"cache_misses"`
	HitRate      float64   `json:"hit_rate"`
	Bytes        int64     `json:"bytes"`
	Edges        int       `json:"edges"`
	LastUpdate   time.Time `json:"last_update"`
}

// NewCacheStats fills the hit rate from hits and misses.
func NewCacheStats(entries int, hits, misses int64) *CacheStats {
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return &CacheStats{
		TotalEntries: entries,
		CacheHits:    hits,
		CacheMisses:  misses,
		HitRate:      hitRate,
		LastUpdate:   time.Now(),
	}
}
