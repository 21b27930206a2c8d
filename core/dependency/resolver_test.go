package dependency

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/pytrace/core/cache/manager"
	"github.com/tristendillon/pytrace/core/classifier"
	"github.com/tristendillon/pytrace/core/metadata"
	"github.com/tristendillon/pytrace/core/models"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeDist(t *testing.T, site, name, version string, modules []string, requires ...string) {
	t.Helper()
	dir := filepath.Join(site, strings.ReplaceAll(name, "-", "_")+"-"+version+".dist-info")
	lines := []string{"Metadata-Version: 2.1", "Name: " + name, "Version: " + version}
	for _, req := range requires {
		lines = append(lines, "Requires-Dist: "+req)
	}
	mustWrite(t, filepath.Join(dir, "METADATA"), strings.Join(lines, "\n")+"\n")
	if len(modules) > 0 {
		mustWrite(t, filepath.Join(dir, "top_level.txt"), strings.Join(modules, "\n")+"\n")
		for _, module := range modules {
			mustWrite(t, filepath.Join(site, module, "__init__.py"), "")
		}
	}
}

// writeRecord lists files in the RECORD of a distribution written by writeDist.
func writeRecord(t *testing.T, site, name, version string, files ...string) {
	t.Helper()
	dir := filepath.Join(site, strings.ReplaceAll(name, "-", "_")+"-"+version+".dist-info")
	var lines []string
	for _, file := range files {
		lines = append(lines, file+",sha256=x,1")
		mustWrite(t, filepath.Join(site, file), "")
	}
	mustWrite(t, filepath.Join(dir, "RECORD"), strings.Join(lines, "\n")+"\n")
}

type fixture struct {
	root string
	site string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{root: t.TempDir(), site: t.TempDir()}
}

func (f *fixture) context(t *testing.T, workers int, exclude ...string) *Context {
	t.Helper()
	idx, err := metadata.Load(context.Background(), []string{f.site}, workers)
	require.NoError(t, err)

	cache := manager.NewCacheManager(64)
	cls := classifier.New(f.root, "", idx, cache.Classifications())
	c, err := NewContext(f.root, cls, cache, Options{Workers: workers, Exclude: exclude})
	require.NoError(t, err)
	return c
}

func (f *fixture) local(t *testing.T, entry string, workers int, exclude ...string) []string {
	t.Helper()
	files, err := NewLocalResolver(f.context(t, workers, exclude...)).ResolveLocal(context.Background(), filepath.Join(f.root, entry))
	require.NoError(t, err)
	return files
}

func (f *fixture) external(t *testing.T, entry string, workers int) []models.PackageRecord {
	t.Helper()
	records, err := NewExternalResolver(f.context(t, workers)).ResolveExternal(context.Background(), filepath.Join(f.root, entry))
	require.NoError(t, err)
	return records
}

func TestStdlibOnlyEntry(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import os\nimport sys, json\nfrom collections import OrderedDict\n")

	assert.Empty(t, f.local(t, "main.py", 2))
	assert.Empty(t, f.external(t, "main.py", 2))
}

func TestDirectExternalWithTransitiveDependency(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import requests\n")
	writeDist(t, f.site, "requests", "2.31.0", []string{"requests"},
		"certifi (>=2017.4.17)",
		"PySocks (!=1.5.7,>=1.5.6) ; extra == 'socks'",
	)
	writeDist(t, f.site, "certifi", "2024.2.2", []string{"certifi"})
	writeDist(t, f.site, "PySocks", "1.7.1", []string{"socks"})

	assert.Equal(t, []models.PackageRecord{
		{Name: "certifi", Version: "2024.2.2", IsDirectImport: false},
		{Name: "requests", Version: "2.31.0", IsDirectImport: true},
	}, f.external(t, "main.py", 4))
}

func TestSiblingRelativeImport(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "from . import helper\n")
	mustWrite(t, filepath.Join(f.root, "helper.py"), "import os\n")

	assert.Equal(t, []string{"helper.py"}, f.local(t, "main.py", 1))
}

func TestRelativeImportAboveRootIsDropped(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "from ..outside import thing\n")
	mustWrite(t, filepath.Join(filepath.Dir(f.root), "outside.py"), "")

	assert.Empty(t, f.local(t, "main.py", 1))
}

func TestAbsoluteLocalPackage(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import pkg.sub\nfrom lib import tools\n")
	mustWrite(t, filepath.Join(f.root, "pkg", "__init__.py"), "")
	mustWrite(t, filepath.Join(f.root, "pkg", "sub.py"), "from .inner import deep\n")
	mustWrite(t, filepath.Join(f.root, "pkg", "other.py"), "")
	mustWrite(t, filepath.Join(f.root, "pkg", "inner", "__init__.py"), "")
	mustWrite(t, filepath.Join(f.root, "pkg", "inner", "deep.py"), "")
	mustWrite(t, filepath.Join(f.root, "pkg", "notes.txt"), "")
	mustWrite(t, filepath.Join(f.root, "lib", "tools.py"), "")
	mustWrite(t, filepath.Join(f.root, "unused.py"), "")

	files := f.local(t, "main.py", 3)
	assert.ElementsMatch(t, []string{
		filepath.Join("pkg", "__init__.py"),
		filepath.Join("pkg", "sub.py"),
		filepath.Join("pkg", "other.py"),
		filepath.Join("pkg", "inner", "__init__.py"),
		filepath.Join("pkg", "inner", "deep.py"),
		filepath.Join("lib", "tools.py"),
	}, files)
}

func TestImportCyclesTerminate(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import a\n")
	mustWrite(t, filepath.Join(f.root, "a.py"), "import b\n")
	mustWrite(t, filepath.Join(f.root, "b.py"), "import a\nimport main\n")

	c := f.context(t, 2)
	files, err := NewLocalResolver(c).ResolveLocal(context.Background(), filepath.Join(f.root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, files)
	assert.NotEmpty(t, c.Cache.Cycles())
}

func TestSymlinkDedupAndContainment(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "external_helper.py"), "")
	mustWrite(t, filepath.Join(f.root, "real.py"), "")
	mustWrite(t, filepath.Join(f.root, "main.py"), "import alias\nimport real\nimport escape\n")
	if err := os.Symlink(filepath.Join(f.root, "real.py"), filepath.Join(f.root, "alias.py")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "external_helper.py"), filepath.Join(f.root, "escape.py")))

	assert.Equal(t, []string{"real.py"}, f.local(t, "main.py", 2))
}

func TestExcludedFilesAreNotTraced(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import app\nimport tests.fixtures\n")
	mustWrite(t, filepath.Join(f.root, "app.py"), "import generated.models\n")
	mustWrite(t, filepath.Join(f.root, "generated", "models.py"), "import app\n")
	mustWrite(t, filepath.Join(f.root, "tests", "fixtures.py"), "")

	assert.Equal(t, []string{"app.py"}, f.local(t, "main.py", 1, "generated/**", "tests/*.py"))
}

func TestParseErrorFileIsStillRecorded(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import broken\n")
	mustWrite(t, filepath.Join(f.root, "broken.py"), "import helper\nx = = 1\n")
	mustWrite(t, filepath.Join(f.root, "helper.py"), "")

	assert.Equal(t, []string{"broken.py"}, f.local(t, "main.py", 1))
}

func TestEntryNeverListed(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "pkg", "__init__.py"), "")
	mustWrite(t, filepath.Join(f.root, "pkg", "main.py"), "from . import util\n")
	mustWrite(t, filepath.Join(f.root, "pkg", "util.py"), "")

	assert.ElementsMatch(t, []string{
		filepath.Join("pkg", "__init__.py"),
		filepath.Join("pkg", "util.py"),
	}, f.local(t, filepath.Join("pkg", "main.py"), 2))
}

func TestDirectWinsOverTransitive(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import requests\nimport urllib3\n")
	writeDist(t, f.site, "requests", "2.31.0", []string{"requests"}, "urllib3<3")
	writeDist(t, f.site, "urllib3", "2.2.1", []string{"urllib3"})

	assert.Equal(t, []models.PackageRecord{
		{Name: "requests", Version: "2.31.0", IsDirectImport: true},
		{Name: "urllib3", Version: "2.2.1", IsDirectImport: true},
	}, f.external(t, "main.py", 2))
}

func TestNameNormalisation(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import app_core\nimport yaml\n")
	writeDist(t, f.site, "app-core", "1.0", []string{"app_core"}, "My_Pkg>=1", "my.pkg", "PyYAML")
	writeDist(t, f.site, "My-Pkg", "0.4", []string{"my_pkg"})
	writeDist(t, f.site, "PyYAML", "6.0.1", []string{"yaml"})

	assert.Equal(t, []models.PackageRecord{
		{Name: "app-core", Version: "1.0", IsDirectImport: true},
		{Name: "my-pkg", Version: "0.4", IsDirectImport: false},
		{Name: "pyyaml", Version: "6.0.1", IsDirectImport: true},
	}, f.external(t, "main.py", 3))
}

func TestRequirementFiltering(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import tool\n")
	writeDist(t, f.site, "tool", "3.0", []string{"tool"},
		"argparse",
		"missing-dep>=1",
		"colorama; extra == \"color\"",
		"rich[jupyter]>=10",
		"vendored_mod",
		"cycle-back",
	)
	writeDist(t, f.site, "colorama", "0.4.6", []string{"colorama"})
	writeDist(t, f.site, "rich", "13.0", []string{"rich"})
	writeDist(t, f.site, "cycle-back", "1.1", []string{"cycle_back"}, "tool")
	mustWrite(t, filepath.Join(f.site, "vendored_mod", "__init__.py"), "")

	assert.Equal(t, []models.PackageRecord{
		{Name: "cycle-back", Version: "1.1", IsDirectImport: false},
		{Name: "tool", Version: "3.0", IsDirectImport: true},
		{Name: "vendored-mod", Version: models.UnknownVersion, IsDirectImport: false},
	}, f.external(t, "main.py", 2))
}

func TestOptionalRequirementKeptWhenAlsoMandatory(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import x_app\n")
	writeDist(t, f.site, "x-app", "1.0", []string{"x_app"}, "opt; extra == \"fast\"", "y-core")
	writeDist(t, f.site, "y-core", "2.0", []string{"y_core"}, "opt>=1")
	writeDist(t, f.site, "opt", "0.5", []string{"opt"})

	assert.Equal(t, []models.PackageRecord{
		{Name: "opt", Version: "0.5", IsDirectImport: false},
		{Name: "x-app", Version: "1.0", IsDirectImport: true},
		{Name: "y-core", Version: "2.0", IsDirectImport: false},
	}, f.external(t, "main.py", 2))
}

func TestNamespacePackagesResolveByLongestPath(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"),
		"from google.protobuf import message\nfrom google.cloud import storage\nimport google.protobuf.json_format\n")
	writeDist(t, f.site, "google-cloud-core", "2.4.1", []string{"google"})
	writeRecord(t, f.site, "google-cloud-core", "2.4.1", "google/cloud/client.py")
	writeDist(t, f.site, "google-cloud-storage", "2.14.0", []string{"google"}, "google-cloud-core")
	writeRecord(t, f.site, "google-cloud-storage", "2.14.0",
		"google/cloud/storage/__init__.py", "google/cloud/storage/blob.py")
	writeDist(t, f.site, "protobuf", "4.25.3", []string{"google"})
	writeRecord(t, f.site, "protobuf", "4.25.3",
		"google/protobuf/__init__.py", "google/protobuf/message.py", "google/protobuf/json_format.py")

	assert.Equal(t, []models.PackageRecord{
		{Name: "google-cloud-core", Version: "2.4.1", IsDirectImport: false},
		{Name: "google-cloud-storage", Version: "2.14.0", IsDirectImport: true},
		{Name: "protobuf", Version: "4.25.3", IsDirectImport: true},
	}, f.external(t, "main.py", 2))
}

func TestInstalledWithoutMetadata(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import bare_module\n")
	mustWrite(t, filepath.Join(f.site, "bare_module.py"), "")

	assert.Equal(t, []models.PackageRecord{
		{Name: "bare-module", Version: models.UnknownVersion, IsDirectImport: true},
	}, f.external(t, "main.py", 1))
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	f := newFixture(t)
	var imports []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		imports = append(imports, "import mod_"+name)
		mustWrite(t, filepath.Join(f.root, "mod_"+name+".py"), "from . import shared\n")
		writeDist(t, f.site, "ext-"+name, "1."+name, []string{"ext_" + name}, "common")
		imports = append(imports, "import ext_"+name)
	}
	mustWrite(t, filepath.Join(f.root, "shared.py"), "")
	writeDist(t, f.site, "common", "9.9", []string{"common"})
	mustWrite(t, filepath.Join(f.root, "main.py"), strings.Join(imports, "\n")+"\n")

	wantFiles := f.local(t, "main.py", 1)
	wantPkgs := f.external(t, "main.py", 1)
	require.Len(t, wantFiles, 6)
	require.Len(t, wantPkgs, 6)
	for _, workers := range []int{2, 8} {
		assert.Equal(t, wantFiles, f.local(t, "main.py", workers))
		assert.Equal(t, wantPkgs, f.external(t, "main.py", workers))
	}
}

func TestNoStdlibOrInvalidNamesLeak(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "main.py"), "import __main__, builtins, _thread, typing\nimport dataclasses\n")
	writeDist(t, f.site, "typing", "3.7.4", []string{"typing"})
	writeDist(t, f.site, "dataclasses", "0.8", []string{"dataclasses"})

	assert.Empty(t, f.external(t, "main.py", 1))
}

func TestContextOptions(t *testing.T) {
	f := newFixture(t)
	idx := metadata.NewIndex(nil)
	cache := manager.NewCacheManager(0)
	cls := classifier.New(f.root, "", idx, cache.Classifications())

	_, err := NewContext(f.root, cls, cache, Options{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)

	_, err = NewContext(filepath.Join(f.root, "missing"), cls, cache, Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	c, err := NewContext(f.root, cls, cache, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Workers)
	assert.True(t, c.Contains(c.Root))
	assert.False(t, c.Contains(filepath.Dir(c.Root)))
}
