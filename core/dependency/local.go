package dependency

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/models"
	"github.com/tristendillon/pytrace/core/walker"
)

// LocalResolver follows absolute and relative imports from an entry file to
// every project file it transitively needs.
type LocalResolver struct {
	ctx *Context
}

func NewLocalResolver(c *Context) *LocalResolver {
	return &LocalResolver{ctx: c}
}

// ResolveLocal returns the root-relative paths of all project files
// reachable from entry, in visit order. The entry file itself is never part
// of the result.
func (r *LocalResolver) ResolveLocal(ctx context.Context, entry string) ([]string, error) {
	entryPath, _, err := r.ctx.Resolve(entry)
	if err != nil {
		return nil, err
	}

	visited, err := walker.NewEngine(r.expand, r.ctx.Workers).Walk(ctx, entryPath)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(visited))
	for _, path := range visited {
		if path == entryPath {
			continue
		}
		files = append(files, r.ctx.Rel(path))
	}
	logger.Debug("Resolved %d local files for %s", len(files), r.ctx.Rel(entryPath))
	return files, nil
}

func (r *LocalResolver) expand(_ context.Context, path string) ([]string, error) {
	parsed, err := r.ctx.Parse(path)
	if err != nil {
		return nil, err
	}
	if parsed.Imports.ParseError != nil {
		logger.Warn("Failed to parse %s, treating it as having no imports: %v", parsed.RelPath, parsed.Imports.ParseError)
	}

	var candidates []string
	for _, ref := range parsed.Imports.References {
		switch ref.Kind {
		case models.AbsoluteImport:
			candidates = append(candidates, r.absoluteTargets(ref)...)
		case models.RelativeImport:
			candidates = append(candidates, r.relativeTargets(path, ref)...)
		}
	}

	if parsed.IsPackageInit() {
		candidates = append(candidates, packageMembers(filepath.Dir(path))...)
	}

	neighbours := r.accept(path, candidates)
	r.ctx.Cache.RecordImports(path, neighbours)
	return neighbours, nil
}

func (r *LocalResolver) absoluteTargets(ref models.ImportReference) []string {
	if r.ctx.Classifier.Classify(ref.Top()) != models.LocalProject {
		return nil
	}
	targets := moduleTargets(r.ctx.Root, ref.Segments(), ref.Names)
	if len(targets) == 0 {
		logger.Debug("Dropping %q: %v", ref.String(), models.ErrUnresolved)
	}
	return targets
}

func (r *LocalResolver) relativeTargets(file string, ref models.ImportReference) []string {
	base := filepath.Dir(file)
	for i := 1; i < ref.Level; i++ {
		base = filepath.Dir(base)
	}
	if !r.ctx.Contains(base) {
		logger.Debug("Dropping %q in %s: %v", ref.String(), r.ctx.Rel(file), models.ErrOutsideRoot)
		return nil
	}

	var targets []string
	if init := filepath.Join(base, models.InitFile); isFile(init) {
		targets = append(targets, init)
	}
	if ref.Module == "" {
		for _, name := range ref.Names {
			targets = append(targets, submodule(base, name)...)
		}
		return targets
	}
	return append(targets, moduleTargets(base, ref.Segments(), ref.Names)...)
}

// moduleTargets locates a dotted module below base: every existing ancestor
// package aggregator, the module file or package aggregator itself, and any
// from-imported names that are submodules of that package.
func moduleTargets(base string, segs, names []string) []string {
	var targets []string
	for i := 1; i < len(segs); i++ {
		init := filepath.Join(base, filepath.Join(segs[:i]...), models.InitFile)
		if isFile(init) {
			targets = append(targets, init)
		}
	}

	target := filepath.Join(base, filepath.Join(segs...))
	switch {
	case isFile(target + models.SourceExt):
		targets = append(targets, target+models.SourceExt)
	case isFile(filepath.Join(target, models.InitFile)):
		targets = append(targets, filepath.Join(target, models.InitFile))
	case !isDir(target):
		logger.Debug("No file for module %s under %s", strings.Join(segs, "."), base)
	}

	if isDir(target) {
		for _, name := range names {
			targets = append(targets, submodule(target, name)...)
		}
	}
	return targets
}

func submodule(dir, name string) []string {
	if name == "*" {
		return nil
	}
	if path := filepath.Join(dir, name+models.SourceExt); isFile(path) {
		return []string{path}
	}
	if path := filepath.Join(dir, name, models.InitFile); isFile(path) {
		return []string{path}
	}
	return nil
}

// packageMembers lists the source files directly inside a package directory.
func packageMembers(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug("Failed to list package %s: %v", dir, err)
		return nil
	}

	var members []string
	for _, entry := range entries {
		if entry.IsDir() || !models.IsSourceFile(entry.Name()) {
			continue
		}
		members = append(members, filepath.Join(dir, entry.Name()))
	}
	return members
}

// accept resolves symlinks and drops candidates that are missing, outside
// the root, excluded, or repeated.
func (r *LocalResolver) accept(from string, candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	neighbours := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		resolved, inside, err := r.ctx.Resolve(candidate)
		if err != nil {
			logger.Debug("Skipping %s: %v", candidate, err)
			continue
		}
		if !inside {
			logger.Debug("Skipping %s imported by %s: %v", resolved, r.ctx.Rel(from), models.ErrOutsideRoot)
			continue
		}
		if !isFile(resolved) {
			continue
		}
		if r.ctx.Excluded(resolved) {
			logger.Debug("Skipping excluded file %s", r.ctx.Rel(resolved))
			continue
		}
		if _, dup := seen[resolved]; dup || resolved == from {
			continue
		}
		seen[resolved] = struct{}{}
		neighbours = append(neighbours, resolved)
	}
	return neighbours
}
