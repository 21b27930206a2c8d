package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tristendillon/pytrace/core/models"
	"github.com/tristendillon/pytrace/core/requirement"
)

const (
	distInfoSuffix = ".dist-info"
	eggInfoSuffix  = ".egg-info"
)

// Distribution is one installed package as described by its metadata
// directory in site-packages.
type Distribution struct {
	Name      string
	Canonical string
	Version   string
	// Requires holds the raw requirement lines, optional ones included.
	Requires []string
	// Modules are the top-level import names the distribution provides.
	Modules []string
	// Packages are the dotted module paths below the top level installed
	// according to RECORD, such as google.protobuf.
	Packages []string
	Path     string
}

func isMetadataEntry(name string) bool {
	return strings.HasSuffix(name, distInfoSuffix) || strings.HasSuffix(name, eggInfoSuffix)
}

// readDistribution parses a *.dist-info directory, a *.egg-info directory, or
// a legacy single-file *.egg-info.
func readDistribution(path string) (*Distribution, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var dist *Distribution
	switch {
	case strings.HasSuffix(path, distInfoSuffix):
		dist, err = readDistInfo(path)
	case info.IsDir():
		dist, err = readEggInfo(path)
	default:
		dist, err = readHeaderFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata in %s: %w", path, err)
	}

	dist.Path = path
	fillFromDirName(dist, filepath.Base(path))
	if dist.Name == "" {
		return nil, fmt.Errorf("no distribution name in %s", path)
	}
	dist.Canonical = requirement.Canonical(dist.Name)
	if dist.Version == "" {
		dist.Version = models.UnknownVersion
	}
	if len(dist.Modules) == 0 {
		dist.Modules = []string{requirement.ModuleName(dist.Name)}
	}
	return dist, nil
}

func readDistInfo(dir string) (*Distribution, error) {
	dist, err := readHeaderFile(filepath.Join(dir, "METADATA"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		dist = &Distribution{}
	}

	modules, packages, err := readRecord(filepath.Join(dir, "RECORD"))
	if err == nil {
		dist.Modules = modules
		dist.Packages = packages
	}
	if top, err := readLines(filepath.Join(dir, "top_level.txt")); err == nil {
		dist.Modules = top
	}
	return dist, nil
}

func readEggInfo(dir string) (*Distribution, error) {
	dist, err := readHeaderFile(filepath.Join(dir, "PKG-INFO"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		dist = &Distribution{}
	}

	if f, err := os.Open(filepath.Join(dir, "requires.txt")); err == nil {
		dist.Requires = append(dist.Requires, parseRequiresTxt(f)...)
		f.Close()
	}
	if modules, err := readLines(filepath.Join(dir, "top_level.txt")); err == nil {
		dist.Modules = modules
	}
	return dist, nil
}

// readHeaderFile reads the RFC 822 style header block of METADATA or PKG-INFO.
// The description body after the first blank line is ignored.
func readHeaderFile(path string) (*Distribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := textproto.NewReader(bufio.NewReader(f)).ReadMIMEHeader()
	if err != nil && len(hdr) == 0 && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return &Distribution{
		Name:     strings.TrimSpace(hdr.Get("Name")),
		Version:  strings.TrimSpace(hdr.Get("Version")),
		Requires: hdr.Values("Requires-Dist"),
	}, nil
}

// parseRequiresTxt converts setuptools requires.txt sections into
// Requires-Dist style lines: "[extra]" entries gain an extra marker and
// "[:marker]" entries keep only their environment marker.
func parseRequiresTxt(r io.Reader) []string {
	var out []string
	extra, marker := "", ""

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			extra, marker, _ = strings.Cut(section, ":")
			continue
		}

		var clauses []string
		if marker != "" {
			clauses = append(clauses, "("+marker+")")
		}
		if extra != "" {
			clauses = append(clauses, fmt.Sprintf("extra == %q", extra))
		}
		if len(clauses) > 0 {
			line += "; " + strings.Join(clauses, " and ")
		}
		out = append(out, line)
	}
	return out
}

// readRecord derives import paths from the files listed in RECORD. It
// returns the top-level names and, separately, every dotted path below them.
func readRecord(path string) ([]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var modules, packages []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, _, _ := strings.Cut(scanner.Text(), ",")
		segs := recordModulePath(strings.Trim(entry, "\""))
		for i := range segs {
			dotted := strings.Join(segs[:i+1], ".")
			if _, ok := seen[dotted]; ok {
				continue
			}
			seen[dotted] = struct{}{}
			if i == 0 {
				modules = append(modules, dotted)
			} else {
				packages = append(packages, dotted)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(modules) == 0 {
		return nil, nil, os.ErrNotExist
	}
	return modules, packages, nil
}

// recordModulePath turns one RECORD file entry into the segments of the
// module it installs: a/b/__init__.py gives [a b], a/b/c.py gives [a b c] and
// a/_c.cpython-311.so gives [a _c]. Data files and metadata give nil.
func recordModulePath(entry string) []string {
	if entry == "" || strings.HasPrefix(entry, "..") {
		return nil
	}
	segs := strings.Split(entry, "/")
	last := segs[len(segs)-1]
	switch {
	case models.IsSourceFile(last):
		last = strings.TrimSuffix(last, models.SourceExt)
	case strings.HasSuffix(last, ".so") || strings.HasSuffix(last, ".pyd"):
		last, _, _ = strings.Cut(last, ".")
	case len(segs) > 1:
		// Any other file only shows its directories are packages.
		segs, last = segs[:len(segs)-1], segs[len(segs)-2]
	default:
		return nil
	}
	segs[len(segs)-1] = last
	if last == "__init__" {
		segs = segs[:len(segs)-1]
	}

	for i, seg := range segs {
		if !isIdentifier(seg) {
			return segs[:i]
		}
	}
	return segs
}

func isIdentifier(s string) bool {
	if s == "" || s == "__pycache__" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, os.ErrNotExist
	}
	return lines, nil
}

// fillFromDirName fills a missing name or version from a directory named
// "<name>-<version>.dist-info".
func fillFromDirName(dist *Distribution, base string) {
	stem := strings.TrimSuffix(strings.TrimSuffix(base, distInfoSuffix), eggInfoSuffix)
	name, version, _ := strings.Cut(stem, "-")
	if dist.Name == "" {
		dist.Name = name
	}
	if dist.Version == "" {
		if v, _, _ := strings.Cut(version, "-"); v != "" {
			dist.Version = v
		}
	}
}
