package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/requirement"
)

// Index is a read-only view of the distributions installed in a set of
// site-packages directories. Earlier directories shadow later ones.
type Index struct {
	siteDirs []string
	byName   map[string]*Distribution
	byModule map[string]*Distribution
	byPath   map[string]*Distribution
}

func NewIndex(siteDirs []string) *Index {
	return &Index{
		siteDirs: siteDirs,
		byName:   make(map[string]*Distribution),
		byModule: make(map[string]*Distribution),
		byPath:   make(map[string]*Distribution),
	}
}

// Load scans every site directory for *.dist-info and *.egg-info entries and
// parses them with up to workers goroutines. Unreadable entries are logged
// and skipped.
func Load(ctx context.Context, siteDirs []string, workers int) (*Index, error) {
	idx := NewIndex(siteDirs)

	var paths []string
	for _, dir := range siteDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("Site directory %s does not exist", dir)
				continue
			}
			return nil, fmt.Errorf("failed to read site directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if isMetadataEntry(entry.Name()) {
				paths = append(paths, filepath.Join(dir, entry.Name()))
			}
		}
	}

	dists := make([]*Distribution, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			dist, err := readDistribution(path)
			if err != nil {
				logger.Warn("Skipping distribution: %v", err)
				return nil
			}
			dists[i] = dist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("metadata scan: %w", err)
	}

	for _, dist := range dists {
		if dist != nil {
			idx.Add(dist)
		}
	}

	logger.Debug("Indexed %d distributions from %d site directories", len(idx.byName), len(siteDirs))
	return idx, nil
}

// Add registers dist unless a distribution with the same canonical name is
// already present.
func (idx *Index) Add(dist *Distribution) {
	if _, ok := idx.byName[dist.Canonical]; ok {
		return
	}
	idx.byName[dist.Canonical] = dist
	for _, module := range dist.Modules {
		if _, ok := idx.byModule[module]; !ok {
			idx.byModule[module] = dist
		}
	}
	for _, path := range dist.Packages {
		if _, ok := idx.byPath[path]; !ok {
			idx.byPath[path] = dist
		}
	}
}

func (idx *Index) SiteDirs() []string {
	return idx.siteDirs
}

func (idx *Index) Len() int {
	return len(idx.byName)
}

// Lookup finds a distribution by any spelling of its name.
func (idx *Index) Lookup(name string) (*Distribution, bool) {
	dist, ok := idx.byName[requirement.Canonical(name)]
	return dist, ok
}

// ByModule finds the distribution that provides a top-level import name.
func (idx *Index) ByModule(module string) (*Distribution, bool) {
	dist, ok := idx.byModule[module]
	return dist, ok
}

// Resolve maps an imported top-level name to its distribution, first by
// import name and then by distribution name under either separator spelling.
func (idx *Index) Resolve(name string) (*Distribution, bool) {
	for _, spelling := range requirement.Spellings(name) {
		if dist, ok := idx.ByModule(spelling); ok {
			return dist, true
		}
	}
	return idx.Lookup(name)
}

// ResolveModule maps a dotted import path to the distribution installing
// the longest prefix of it, and returns that prefix. A namespace package
// such as google, shared by several distributions, only decides the match
// when no deeper path is installed.
func (idx *Index) ResolveModule(module string) (*Distribution, string, bool) {
	segs := strings.Split(module, ".")
	for i := len(segs); i > 1; i-- {
		prefix := strings.Join(segs[:i], ".")
		if dist, ok := idx.byPath[prefix]; ok {
			return dist, prefix, true
		}
	}
	if dist, ok := idx.Resolve(segs[0]); ok {
		return dist, segs[0], true
	}
	return nil, "", false
}

// HasModule reports whether an importable top-level module exists in one of
// the site directories under either separator spelling.
func (idx *Index) HasModule(name string) bool {
	for _, spelling := range requirement.Spellings(name) {
		if strings.Contains(spelling, "-") {
			continue
		}
		for _, dir := range idx.siteDirs {
			if moduleExists(dir, spelling) {
				return true
			}
		}
	}
	return false
}

func moduleExists(dir, name string) bool {
	if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, name+".py")); err == nil {
		return true
	}
	for _, pattern := range []string{name + ".*.so", name + ".so", name + ".*.pyd", name + ".pyd"} {
		if matches, _ := filepath.Glob(filepath.Join(dir, pattern)); len(matches) > 0 {
			return true
		}
	}
	return false
}
