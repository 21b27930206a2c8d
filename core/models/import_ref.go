package models

import "strings"

type ImportKind int

const (
	AbsoluteImport ImportKind = iota
	RelativeImport
)

func (k ImportKind) String() string {
	switch k {
	case AbsoluteImport:
		return "absolute"
	case RelativeImport:
		return "relative"
	default:
		return "unknown"
	}
}

// ImportReference is one imported module as written in a source file.
// Absolute references have Level 0 and a non-empty dotted Module. Relative
// references have Level >= 1 and an optional dotted Module.
type ImportReference struct {
	Kind   ImportKind
	Level  int
	Module string
	Names  []string
	Line   int
}

// Top returns the first segment of the dotted module path.
func (r ImportReference) Top() string {
	if r.Module == "" {
		return ""
	}
	top, _, _ := strings.Cut(r.Module, ".")
	return top
}

// Segments returns the dotted module path split on ".".
func (r ImportReference) Segments() []string {
	if r.Module == "" {
		return nil
	}
	return strings.Split(r.Module, ".")
}

func (r ImportReference) key() string {
	return r.Kind.String() + "|" + strings.Repeat(".", r.Level) + r.Module + "|" + strings.Join(r.Names, ",")
}

func (r ImportReference) String() string {
	if r.Kind == RelativeImport || len(r.Names) > 0 {
		return "from " + strings.Repeat(".", r.Level) + r.Module + " import " + strings.Join(r.Names, ", ")
	}
	return "import " + r.Module
}

// ImportSet is the ordered, de-duplicated list of references found in one file.
// A file that failed to parse has no references and a non-nil ParseError.
type ImportSet struct {
	References []ImportReference
	ParseError error

	seen map[string]struct{}
}

func NewImportSet() *ImportSet {
	return &ImportSet{seen: make(map[string]struct{})}
}

// Add appends ref unless an identical reference was already recorded.
func (s *ImportSet) Add(ref ImportReference) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	k := ref.key()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.References = append(s.References, ref)
	return true
}

func (s *ImportSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.References)
}

// Absolute returns only the level-0 references.
func (s *ImportSet) Absolute() []ImportReference {
	if s == nil {
		return nil
	}
	var out []ImportReference
	for _, r := range s.References {
		if r.Kind == AbsoluteImport {
			out = append(out, r)
		}
	}
	return out
}

// TopLevelNames returns the distinct first segments of absolute references in
// first-seen order.
func (s *ImportSet) TopLevelNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, r := range s.Absolute() {
		top := r.Top()
		if _, ok := seen[top]; ok || top == "" {
			continue
		}
		seen[top] = struct{}{}
		names = append(names, top)
	}
	return names
}
