package tracer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tristendillon/pytrace/core/cache/manager"
	"github.com/tristendillon/pytrace/core/classifier"
	"github.com/tristendillon/pytrace/core/config"
	"github.com/tristendillon/pytrace/core/dependency"
	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/manifest"
	"github.com/tristendillon/pytrace/core/metadata"
	"github.com/tristendillon/pytrace/core/models"
)

// Tracer runs traces against one interpreter environment. The metadata
// index is loaded on the first trace and shared by later ones.
type Tracer struct {
	cfg *config.Config

	mu        sync.Mutex
	index     *metadata.Index
	stdlibDir string
}

func New(cfg *config.Config) *Tracer {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Tracer{cfg: cfg}
}

func (t *Tracer) Config() *config.Config {
	return t.cfg
}

// Trace resolves the project files and installed packages reachable from
// entryFile. Relative paths resolve against the working directory.
func (t *Tracer) Trace(ctx context.Context, projectRoot, entryFile string) (*models.Manifest, error) {
	root, entry, err := validatePaths(projectRoot, entryFile)
	if err != nil {
		return nil, models.NewTraceError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, stdlibDir, err := t.environment(ctx)
	if err != nil {
		return nil, models.NewTraceError(err)
	}

	cache := manager.NewCacheManager(t.cfg.CacheSize)
	cls := classifier.New(root, stdlibDir, idx, cache.Classifications())
	dctx, err := dependency.NewContext(root, cls, cache, dependency.Options{
		Workers: t.cfg.Workers,
		Exclude: t.cfg.Exclude,
	})
	if err != nil {
		return nil, models.NewTraceError(err)
	}

	logger.Debug("Tracing %s in %s", dctx.Rel(entry), dctx.Root)

	var (
		files    []string
		packages []models.PackageRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		files, err = dependency.NewLocalResolver(dctx).ResolveLocal(gctx, entry)
		if err != nil {
			return models.NewTraceError(fmt.Errorf("failed to resolve local files: %w", err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		packages, err = dependency.NewExternalResolver(dctx).ResolveExternal(gctx, entry)
		if err != nil {
			return models.NewTraceError(fmt.Errorf("failed to resolve packages: %w", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if logger.IsVerbose() {
		for _, pkg := range packages {
			if !pkg.IsDirectImport {
				logger.Debug("Package %s is required by %s", pkg.Name, strings.Join(cache.RequiredBy(pkg.Name), ", "))
			}
		}
		for _, cycle := range cache.Cycles() {
			logger.Debug("Import cycle: %s", strings.Join(displayCycle(dctx, cycle), " -> "))
		}
		cache.LogStats()
	}

	m := manifest.Build(files, packages)
	logger.Debug("Traced %d files and %d packages", len(m.Files), len(m.Packages))
	return m, nil
}

// environment returns the metadata index and stdlib directory, probing the
// interpreter for whatever the config leaves unset.
func (t *Tracer) environment(ctx context.Context) (*metadata.Index, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index != nil {
		return t.index, t.stdlibDir, nil
	}

	siteDirs := t.cfg.SitePackages
	stdlibDir := t.cfg.StdlibDir
	if len(siteDirs) == 0 || stdlibDir == "" {
		paths, err := metadata.Probe(ctx, t.cfg.Python)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			logger.Warn("Could not query the Python interpreter, falling back to built-in stdlib names: %v", err)
		default:
			logger.Debug("Interpreter Python %s, stdlib %s", paths.Version, paths.StdlibDir)
			if len(siteDirs) == 0 {
				siteDirs = paths.SitePackages
			}
			if stdlibDir == "" {
				stdlibDir = paths.StdlibDir
			}
		}
	}

	idx, err := metadata.Load(ctx, siteDirs, t.cfg.Workers)
	if err != nil {
		return nil, "", fmt.Errorf("failed to index installed packages: %w", err)
	}

	t.index = idx
	t.stdlibDir = stdlibDir
	return idx, stdlibDir, nil
}

func validatePaths(projectRoot, entryFile string) (string, string, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", "", fmt.Errorf("invalid project root %s: %w", projectRoot, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("project root %s is not a directory", projectRoot)
	}

	entry, err := filepath.Abs(entryFile)
	if err != nil {
		return "", "", fmt.Errorf("invalid entry file %s: %w", entryFile, err)
	}
	info, err = os.Stat(entry)
	if err != nil {
		return "", "", fmt.Errorf("entry file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("entry file %s is not a regular file", entryFile)
	}
	return root, entry, nil
}

func displayCycle(dctx *dependency.Context, cycle []string) []string {
	out := make([]string, len(cycle))
	for i, node := range cycle {
		if filepath.IsAbs(node) {
			node = dctx.Rel(node)
		}
		out[i] = node
	}
	return out
}
