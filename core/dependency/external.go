package dependency

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/models"
	"github.com/tristendillon/pytrace/core/requirement"
	"github.com/tristendillon/pytrace/core/walker"
)

// ExternalResolver computes the closure of installed packages required by
// the entry file's direct external imports.
type ExternalResolver struct {
	ctx *Context
}

func NewExternalResolver(c *Context) *ExternalResolver {
	return &ExternalResolver{ctx: c}
}

// ResolveExternal returns one record per package in the closure, sorted by
// canonical name. Packages imported by the entry file are marked direct
// even when another package also requires them.
func (r *ExternalResolver) ResolveExternal(ctx context.Context, entry string) ([]models.PackageRecord, error) {
	entryPath, _, err := r.ctx.Resolve(entry)
	if err != nil {
		return nil, err
	}
	parsed, err := r.ctx.Parse(entryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry file: %w", err)
	}

	var roots []string
	direct := make(map[string]bool)
	analysis := r.ctx.Classifier.Analyze(parsed.Imports)
	logger.Debug("Entry %s imports %d stdlib, %d local, %d external and %d unknown modules",
		parsed.RelPath, len(analysis.StandardLibImports), len(analysis.LocalImports),
		len(analysis.ExternalImports), len(analysis.UnknownImports))
	external := make(map[string]bool, len(analysis.ExternalImports))
	for _, name := range analysis.ExternalImports {
		external[name] = true
	}
	for _, ref := range parsed.Imports.References {
		if ref.Kind != models.AbsoluteImport || !external[ref.Top()] {
			continue
		}
		for _, pkg := range r.packagesOf(ref) {
			if !direct[pkg] {
				direct[pkg] = true
				roots = append(roots, pkg)
			}
		}
	}

	engine := walker.NewEngine(r.expand, r.ctx.Workers).OnError(func(pkg string, err error) {
		if errors.Is(err, models.ErrMetadataMissing) {
			logger.Warn("No installed metadata for %s, its dependencies are not traced", pkg)
			return
		}
		logger.Warn("Skipping dependencies of %s: %v", pkg, err)
	})
	visited, err := engine.Walk(ctx, roots...)
	if err != nil {
		return nil, err
	}

	records := make([]models.PackageRecord, 0, len(visited))
	for _, pkg := range visited {
		records = append(records, models.PackageRecord{
			Name:           pkg,
			Version:        r.version(pkg),
			IsDirectImport: direct[pkg],
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})

	logger.Debug("Resolved %d packages (%d direct) for %s", len(records), len(roots), r.ctx.Rel(entryPath))
	return records, nil
}

// packagesOf maps an absolute import to the canonical names of the
// distributions providing it. For "from a import b" the submodule a.b is
// tried first, so a namespace package a resolves through whichever
// distribution installs a.b.
func (r *ExternalResolver) packagesOf(ref models.ImportReference) []string {
	var pkgs []string
	for _, name := range ref.Names {
		if name == "*" {
			continue
		}
		dist, prefix, ok := r.ctx.Classifier.Distribution(ref.Module + "." + name)
		if ok && len(prefix) > len(ref.Module) {
			pkgs = append(pkgs, dist.Canonical)
		}
	}
	if len(pkgs) > 0 {
		return pkgs
	}

	if dist, _, ok := r.ctx.Classifier.Distribution(ref.Module); ok {
		return []string{dist.Canonical}
	}
	return []string{requirement.Canonical(ref.Top())}
}

func (r *ExternalResolver) version(pkg string) string {
	if dist, ok := r.ctx.Classifier.Index().Lookup(pkg); ok {
		return dist.Version
	}
	return models.UnknownVersion
}

func (r *ExternalResolver) expand(_ context.Context, pkg string) ([]string, error) {
	return r.ctx.Cache.Packages().Do(pkg, func() ([]string, error) {
		return r.requirements(pkg)
	})
}

// requirements returns the confirmed, mandatory, non-stdlib requirements of
// an installed package.
func (r *ExternalResolver) requirements(pkg string) ([]string, error) {
	index := r.ctx.Classifier.Index()
	dist, ok := index.Lookup(pkg)
	if !ok {
		return nil, fmt.Errorf("%s: %w", pkg, models.ErrMetadataMissing)
	}

	seen := make(map[string]struct{})
	deps := []string{}
	for _, req := range dist.Requires {
		if requirement.IsOptional(req) {
			logger.Debug("Ignoring optional requirement of %s: %s", pkg, req)
			continue
		}
		name, ok := requirement.Parse(req)
		if !ok || name == pkg {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if r.ctx.Classifier.IsStdlib(requirement.ModuleName(name)) {
			logger.Debug("Ignoring requirement %s of %s: part of the standard library", name, pkg)
			continue
		}
		if dep, ok := index.Lookup(name); ok {
			deps = append(deps, dep.Canonical)
			continue
		}
		if index.HasModule(name) {
			deps = append(deps, name)
			continue
		}
		logger.Debug("Ignoring requirement %s of %s: not installed", name, pkg)
	}

	r.ctx.Cache.RecordRequirements(pkg, deps)
	return deps, nil
}
