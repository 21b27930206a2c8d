package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const probeScript = `import json, site, sys, sysconfig
paths = sysconfig.get_paths()
dirs = [p for p in sys.path if p.endswith(("site-packages", "dist-packages"))]
try:
    dirs += site.getsitepackages()
except AttributeError:
    pass
dirs += [paths.get("purelib", ""), paths.get("platlib", "")]
print(json.dumps({"stdlib": paths.get("stdlib", ""), "site_packages": dirs, "version": "%d.%d" % sys.version_info[:2]}))
`

// Paths are the interpreter locations the classifier and index need.
type Paths struct {
	StdlibDir    string   `json:"stdlib"`
	SitePackages []string `json:"site_packages"`
	Version      string   `json:"version"`
}

// DefaultInterpreter prefers the active virtualenv's python.
func DefaultInterpreter() string {
	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		bin := "bin"
		name := "python"
		if runtime.GOOS == "windows" {
			bin, name = "Scripts", "python.exe"
		}
		candidate := filepath.Join(venv, bin, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "python3"
}

// Probe asks the interpreter for its stdlib and site-packages directories.
// Duplicate and non-existent site directories are dropped, order is kept.
func Probe(ctx context.Context, python string) (*Paths, error) {
	if python == "" {
		python = DefaultInterpreter()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, "-c", probeScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to probe interpreter %s: %w: %s", python, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var paths Paths
	if err := json.Unmarshal(stdout.Bytes(), &paths); err != nil {
		return nil, fmt.Errorf("failed to decode interpreter paths from %s: %w", python, err)
	}
	paths.SitePackages = existingDirs(paths.SitePackages)
	return &paths, nil
}

func existingDirs(dirs []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}
