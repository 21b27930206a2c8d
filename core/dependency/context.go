package dependency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"

	cacheModels "github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/classifier"
	"github.com/tristendillon/pytrace/core/models"
)

// Options tune a resolver context.
type Options struct {
	Workers int
	// Exclude holds doublestar globs matched against root-relative slash paths.
	Exclude []string
}

// Context is the state both resolvers share during one trace: the project
// root, the classifier and the cache layers. It is discarded with the trace.
type Context struct {
	Root       string
	Classifier *classifier.Classifier
	Cache      cacheModels.CacheManagerInterface
	Workers    int
	Exclude    []string
}

// NewContext resolves root to an absolute, symlink-free directory and
// validates the exclude patterns.
func NewContext(root string, cls *classifier.Classifier, cache cacheModels.CacheManagerInterface, opts Options) (*Context, error) {
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root %s: %w", root, err)
	}

	for _, pattern := range opts.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Context{
		Root:       resolved,
		Classifier: cls,
		Cache:      cache,
		Workers:    workers,
		Exclude:    opts.Exclude,
	}, nil
}

// Resolve returns the absolute, symlink-resolved form of path and whether it
// lies inside the project root.
func (c *Context) Resolve(path string) (string, bool, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return "", false, err
	}
	return resolved, c.Contains(resolved), nil
}

// Contains reports whether an already resolved path is the root or below it.
func (c *Context) Contains(path string) bool {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel converts a resolved path into a root-relative one with OS separators.
func (c *Context) Rel(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return path
	}
	return rel
}

// Excluded reports whether a resolved path matches an exclude pattern.
func (c *Context) Excluded(path string) bool {
	if len(c.Exclude) == 0 {
		return false
	}
	rel := filepath.ToSlash(c.Rel(path))
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Parse returns the cached import set of a file.
func (c *Context) Parse(path string) (*models.ParsedFile, error) {
	return c.Cache.GetParsedFile(path, c.Rel(path))
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
