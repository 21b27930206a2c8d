package requirement

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	extraMarker  = regexp.MustCompile(`\bextra\s*==`)
	leadingName  = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)`)
	separatorRun = regexp.MustCompile(`[-_.]+`)
)

// IsOptional reports whether a requirement line is gated behind an extra,
// either through an extras bracket or an `extra ==` environment marker.
func IsOptional(req string) bool {
	return strings.Contains(req, "[") || extraMarker.MatchString(req)
}

// BaseName returns the bare distribution name of a requirement line with the
// marker clause, URL, extras and version constraints removed. It returns an
// empty string when the line does not start with a name.
func BaseName(req string) string {
	if i := strings.IndexByte(req, ';'); i >= 0 {
		req = req[:i]
	}
	m := leadingName.FindStringSubmatch(req)
	if m == nil {
		return ""
	}
	return m[1]
}

// Canonical folds case and collapses runs of "-", "_" and "." into a single
// "-", so that every spelling of a distribution name compares equal.
func Canonical(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return separatorRun.ReplaceAllString(folded, "-")
}

// Parse returns the canonical name of a mandatory requirement. Optional or
// unparsable lines report false.
func Parse(req string) (string, bool) {
	if IsOptional(req) {
		return "", false
	}
	name := BaseName(req)
	if name == "" {
		return "", false
	}
	return Canonical(name), true
}

// ModuleName is the importable spelling of a canonical distribution name.
func ModuleName(name string) string {
	return strings.ReplaceAll(Canonical(name), "-", "_")
}

// Spellings lists the name as given followed by its underscore and hyphen
// variants, without duplicates.
func Spellings(name string) []string {
	out := []string{name}
	for _, alt := range []string{
		strings.ReplaceAll(name, "-", "_"),
		strings.ReplaceAll(name, "_", "-"),
	} {
		dup := false
		for _, s := range out {
			if s == alt {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, alt)
		}
	}
	return out
}
