package models

// ParsedFile is a project source file together with its extracted imports.
type ParsedFile struct {
	Path        string
	RelPath     string
	ContentHash string
	Imports     *ImportSet
}

// IsPackageInit reports whether the file is a package aggregator.
func (pf *ParsedFile) IsPackageInit() bool {
	return IsInitFile(pf.Path)
}
