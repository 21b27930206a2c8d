package models

// DependencyAnalysis buckets the top-level names imported by one file.
type DependencyAnalysis struct {
	StandardLibImports []string
	ExternalImports    []string
	LocalImports       []string
	UnknownImports     []string
}
