package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/pytrace/core/ast"
	"github.com/tristendillon/pytrace/core/cache/layers"
	"github.com/tristendillon/pytrace/core/metadata"
	"github.com/tristendillon/pytrace/core/models"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	root := t.TempDir()
	site := t.TempDir()
	stdlib := t.TempDir()

	mustWrite(t, filepath.Join(root, "helpers", "__init__.py"), "")
	mustWrite(t, filepath.Join(root, "util.py"), "")
	mustWrite(t, filepath.Join(root, "json", "__init__.py"), "")

	mustWrite(t, filepath.Join(site, "requests-2.31.0.dist-info", "METADATA"), "Name: requests\nVersion: 2.31.0\n")
	mustWrite(t, filepath.Join(site, "PyYAML-6.0.1.dist-info", "METADATA"), "Name: PyYAML\nVersion: 6.0.1\n")
	mustWrite(t, filepath.Join(site, "PyYAML-6.0.1.dist-info", "top_level.txt"), "yaml\n")
	mustWrite(t, filepath.Join(site, "loose_module.py"), "")

	mustWrite(t, filepath.Join(stdlib, "vendored_std.py"), "")
	mustWrite(t, filepath.Join(stdlib, "stdpkg", "__init__.py"), "")
	mustWrite(t, filepath.Join(stdlib, "lib-dynload", "fastmod.cpython-311-x86_64-linux-gnu.so"), "")

	idx, err := metadata.Load(context.Background(), []string{site}, 2)
	require.NoError(t, err)
	return New(root, stdlib, idx, layers.NewClassificationCache())
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"", "_private", "__main__", "__future__", "builtins", "module", "cython_runtime"} {
		assert.False(t, ValidName(name), name)
	}
	for _, name := range []string{"os", "requests", "helpers"} {
		assert.True(t, ValidName(name), name)
	}
}

func TestClassify(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name string
		want models.Classification
	}{
		{"os", models.StandardLibrary},
		{"collections", models.StandardLibrary},
		{"json", models.StandardLibrary},
		{"vendored_std", models.StandardLibrary},
		{"stdpkg", models.StandardLibrary},
		{"fastmod", models.StandardLibrary},
		{"helpers", models.LocalProject},
		{"util", models.LocalProject},
		{"requests", models.ExternalPackage},
		{"yaml", models.ExternalPackage},
		{"loose_module", models.ExternalPackage},
		{"not_installed", models.Unknown},
		{"__main__", models.Unknown},
		{"builtins", models.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name))
		})
	}
}

func TestClassifyMemoised(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, models.LocalProject, c.Classify("helpers"))

	require.NoError(t, os.RemoveAll(filepath.Join(c.Root(), "helpers")))
	assert.Equal(t, models.LocalProject, c.Classify("helpers"))
}

func TestDistribution(t *testing.T) {
	c := newTestClassifier(t)

	dist, prefix, ok := c.Distribution("yaml.constructor")
	require.True(t, ok)
	assert.Equal(t, "pyyaml", dist.Canonical)
	assert.Equal(t, "6.0.1", dist.Version)
	assert.Equal(t, "yaml", prefix)

	_, _, ok = c.Distribution("loose_module")
	assert.False(t, ok)
}

func TestAnalyze(t *testing.T) {
	c := newTestClassifier(t)
	set := ast.ParseImports([]byte("import os, requests\nfrom helpers import x\nimport mystery\nfrom . import sibling\nimport __main__\n"))
	require.NoError(t, set.ParseError)

	analysis := c.Analyze(set)
	assert.Equal(t, []string{"os"}, analysis.StandardLibImports)
	assert.Equal(t, []string{"requests"}, analysis.ExternalImports)
	assert.Equal(t, []string{"helpers"}, analysis.LocalImports)
	assert.Equal(t, []string{"mystery"}, analysis.UnknownImports)
}

func TestNilIndex(t *testing.T) {
	c := New(t.TempDir(), "", nil, layers.NewClassificationCache())
	assert.Equal(t, models.StandardLibrary, c.Classify("sys"))
	assert.Equal(t, models.Unknown, c.Classify("requests"))
	assert.Equal(t, 0, c.Index().Len())
}
