package models

type Classification int

const (
	Unknown Classification = iota
	StandardLibrary
	LocalProject
	ExternalPackage
)

func (c Classification) String() string {
	switch c {
	case StandardLibrary:
		return "stdlib"
	case LocalProject:
		return "local"
	case ExternalPackage:
		return "external"
	default:
		return "unknown"
	}
}
