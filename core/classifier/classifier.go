package classifier

import (
	"os"
	"path/filepath"
	"strings"

	cacheModels "github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/metadata"
	"github.com/tristendillon/pytrace/core/models"
)

var reservedNames = map[string]struct{}{
	"__main__":       {},
	"builtins":       {},
	"module":         {},
	"cython_runtime": {},
}

// ValidName reports whether an imported top-level name can ever be
// reported. Empty names, private names and interpreter internals are not.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, "_") {
		return false
	}
	_, reserved := reservedNames[name]
	return !reserved
}

// Classifier decides where a top-level import name comes from for one
// project root.
type Classifier struct {
	root      string
	stdlibDir string
	index     *metadata.Index
	cache     cacheModels.ClassificationCacheInterface
}

func New(root, stdlibDir string, index *metadata.Index, cache cacheModels.ClassificationCacheInterface) *Classifier {
	if index == nil {
		index = metadata.NewIndex(nil)
	}
	return &Classifier{
		root:      root,
		stdlibDir: stdlibDir,
		index:     index,
		cache:     cache,
	}
}

func (c *Classifier) Root() string {
	return c.root
}

// Classify returns the memoised classification of name. The first time a
// valid name is found to be Unknown a warning is logged.
func (c *Classifier) Classify(name string) models.Classification {
	if !ValidName(name) {
		return models.Unknown
	}
	if cached, ok := c.cache.GetClassification(name, c.root); ok {
		return cached
	}

	result := c.classify(name)
	if c.cache.SetClassification(name, c.root, result) {
		if result == models.Unknown {
			logger.Warn("Could not classify import %q: not stdlib, not in project, not installed", name)
		} else {
			logger.Debug("Classified %s as %s", name, result)
		}
	}
	return result
}

func (c *Classifier) classify(name string) models.Classification {
	switch {
	case c.IsStdlib(name):
		return models.StandardLibrary
	case c.isLocal(name):
		return models.LocalProject
	case c.isInstalled(name):
		return models.ExternalPackage
	default:
		return models.Unknown
	}
}

// IsStdlib checks the embedded module list and then the stdlib directory.
func (c *Classifier) IsStdlib(name string) bool {
	if isStdlibName(name) {
		return true
	}
	if c.stdlibDir == "" {
		return false
	}
	if fileExists(filepath.Join(c.stdlibDir, name+models.SourceExt)) ||
		fileExists(filepath.Join(c.stdlibDir, name, models.InitFile)) {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(c.stdlibDir, "lib-dynload", name+".*"))
	return len(matches) > 0
}

func (c *Classifier) isLocal(name string) bool {
	if info, err := os.Stat(filepath.Join(c.root, name)); err == nil && info.IsDir() {
		return true
	}
	return fileExists(filepath.Join(c.root, name+models.SourceExt))
}

func (c *Classifier) isInstalled(name string) bool {
	if _, ok := c.index.Resolve(name); ok {
		return true
	}
	return c.index.HasModule(name)
}

// Distribution returns the installed distribution providing the dotted
// module path, together with the prefix of module it matched.
func (c *Classifier) Distribution(module string) (*metadata.Distribution, string, bool) {
	return c.index.ResolveModule(module)
}

// Index exposes the metadata index the classifier was built with.
func (c *Classifier) Index() *metadata.Index {
	return c.index
}

// Analyze buckets the top-level names of a file's absolute imports.
func (c *Classifier) Analyze(set *models.ImportSet) *models.DependencyAnalysis {
	analysis := &models.DependencyAnalysis{
		StandardLibImports: []string{},
		ExternalImports:    []string{},
		LocalImports:       []string{},
		UnknownImports:     []string{},
	}

	for _, name := range set.TopLevelNames() {
		if !ValidName(name) {
			continue
		}
		switch c.Classify(name) {
		case models.StandardLibrary:
			analysis.StandardLibImports = append(analysis.StandardLibImports, name)
		case models.LocalProject:
			analysis.LocalImports = append(analysis.LocalImports, name)
		case models.ExternalPackage:
			analysis.ExternalImports = append(analysis.ExternalImports, name)
		default:
			analysis.UnknownImports = append(analysis.UnknownImports, name)
		}
	}
	return analysis
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
