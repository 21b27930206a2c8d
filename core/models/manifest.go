package models

import (
	"path/filepath"
	"strings"
)

// UnknownVersion is reported when an installed version cannot be determined.
const UnknownVersion = "unknown"

const (
	SourceExt = ".py"
	InitFile  = "__init__.py"
)

type PackageRecord struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	IsDirectImport bool   `json:"is_direct_import"`
}

// Manifest is the single document emitted per trace.
type Manifest struct {
	Packages []PackageRecord `json:"packages"`
	Files    []string        `json:"files"`
}

func IsSourceFile(name string) bool {
	return strings.HasSuffix(name, SourceExt)
}

func IsInitFile(path string) bool {
	return filepath.Base(path) == InitFile
}
