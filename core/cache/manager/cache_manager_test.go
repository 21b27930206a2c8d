package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetParsedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.py")
	require.NoError(t, os.WriteFile(path, []byte("import requests\n"), 0o644))

	cm := NewCacheManager(8)
	first, err := cm.GetParsedFile(path, "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"requests"}, first.Imports.TopLevelNames())
	assert.NotEmpty(t, first.ContentHash)

	second, err := cm.GetParsedFile(path, "main.py")
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("import yaml, numpy\n"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := cm.GetParsedFile(path, "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"yaml", "numpy"}, third.Imports.TopLevelNames())

	stats := cm.GetStats()
	assert.Equal(t, 1, stats["parse"].TotalEntries)
	assert.Equal(t, int64(1), stats["parse"].CacheHits)
}

func TestGetParsedFile_Missing(t *testing.T) {
	cm := NewCacheManager(0)
	_, err := cm.GetParsedFile(filepath.Join(t.TempDir(), "gone.py"), "gone.py")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCyclesAndRequiredBy(t *testing.T) {
	cm := NewCacheManager(0)
	cm.RecordImports("/p/a.py", []string{"/p/b.py"})
	cm.RecordImports("/p/b.py", []string{"/p/a.py"})
	cm.RecordRequirements("requests", []string{"urllib3", "certifi"})
	cm.RecordRequirements("botocore", []string{"urllib3"})

	cycles := cm.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"/p/a.py", "/p/b.py"}, cycles[0])

	stats := cm.GetStats()
	assert.Equal(t, 2, stats["file_graph"].Edges)
	assert.Equal(t, 3, stats["package_graph"].Edges)
	cm.LogStats()

	assert.Equal(t, []string{"botocore", "requests"}, cm.RequiredBy("urllib3"))
	assert.Equal(t, []string{"requests"}, cm.RequiredBy("certifi"))
	assert.Empty(t, cm.RequiredBy("requests"))
	assert.Empty(t, cm.RequiredBy("unseen"))
}
