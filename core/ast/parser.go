package ast

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/models"
)

// Statements the grammar still accepts from Python 2.
var legacyStatements = map[string]string{
	"print_statement": "print statement",
	"exec_statement":  "exec statement",
}

// ParseImports extracts every import statement from Python source, including
// ones nested inside functions, classes and conditional blocks. Source with
// any syntax error yields an empty set carrying the ParseError.
func ParseImports(src []byte) *models.ImportSet {
	set, err := parseImports(context.Background(), src)
	if err != nil {
		failed := models.NewImportSet()
		failed.ParseError = err
		return failed
	}
	return set
}

// ParseSource parses already loaded source for the file at path.
func ParseSource(path, relPath string, src []byte) *models.ParsedFile {
	imports := ParseImports(src)
	if imports.ParseError != nil {
		logger.Debug("Skipping imports of %s: %v", relPath, imports.ParseError)
	} else {
		logger.Debug("Parsed %s with %d imports", relPath, imports.Len())
	}

	return &models.ParsedFile{
		Path:    path,
		RelPath: relPath,
		Imports: imports,
	}
}

// ParseFile reads and parses the file at path.
func ParseFile(path, relPath string) (*models.ParsedFile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSource(path, relPath, src), nil
}

// parseImports builds a fresh parser per call; tree-sitter parsers are not
// safe for concurrent use.
func parseImports(ctx context.Context, src []byte) (*models.ImportSet, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &models.ParseError{Line: 1, Msg: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root)
	}

	set := models.NewImportSet()
	if err := collect(root, src, set); err != nil {
		return nil, err
	}
	return set, nil
}

// collect walks n in source order and adds each import statement to set.
func collect(n *sitter.Node, src []byte, set *models.ImportSet) error {
	switch n.Type() {
	case "import_statement":
		importStatement(n, src, set)
		return nil
	case "import_from_statement", "future_import_statement":
		fromStatement(n, src, set)
		return nil
	}
	if what, ok := legacyStatements[n.Type()]; ok {
		return errorAt(n, "Python 2 %s", what)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := collect(n.NamedChild(i), src, set); err != nil {
			return err
		}
	}
	return nil
}

// import a.b as c, d
func importStatement(n *sitter.Node, src []byte, set *models.ImportSet) {
	line := lineOf(n)
	for _, name := range importedNames(n, 0, src) {
		set.Add(models.ImportReference{
			Kind:   models.AbsoluteImport,
			Module: name,
			Line:   line,
		})
	}
}

// from ..a.b import c as d, e
// from __future__ import annotations
func fromStatement(n *sitter.Node, src []byte, set *models.ImportSet) {
	ref := models.ImportReference{
		Kind: models.AbsoluteImport,
		Line: lineOf(n),
	}

	first := 0
	if n.Type() == "future_import_statement" {
		ref.Module = "__future__"
	} else {
		first = 1
		module := n.ChildByFieldName("module_name")
		if module == nil {
			return
		}
		if module.Type() == "relative_import" {
			ref.Kind = models.RelativeImport
			for i := 0; i < int(module.NamedChildCount()); i++ {
				part := module.NamedChild(i)
				switch part.Type() {
				case "import_prefix":
					ref.Level = strings.Count(part.Content(src), ".")
				case "dotted_name":
					ref.Module = dottedName(part, src)
				}
			}
		} else {
			ref.Module = dottedName(module, src)
		}
	}

	if hasChild(n, "wildcard_import") {
		ref.Names = []string{"*"}
	} else {
		ref.Names = importedNames(n, first, src)
	}
	set.Add(ref)
}

// importedNames returns the dotted names bound by a statement, skipping the
// first named children and any aliases or comments.
func importedNames(n *sitter.Node, skip int, src []byte) []string {
	var names []string
	for i := skip; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			names = append(names, dottedName(child, src))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, dottedName(name, src))
			}
		}
	}
	return names
}

func dottedName(n *sitter.Node, src []byte) string {
	var parts []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if part := n.NamedChild(i); part.Type() == "identifier" {
			parts = append(parts, part.Content(src))
		}
	}
	if len(parts) == 0 {
		return n.Content(src)
	}
	return strings.Join(parts, ".")
}

func hasChild(n *sitter.Node, nodeType string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == nodeType {
			return true
		}
	}
	return false
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func errorAt(n *sitter.Node, format string, args ...interface{}) error {
	return &models.ParseError{Line: lineOf(n), Msg: fmt.Sprintf(format, args...)}
}

// syntaxError reports the first error or missing node below root.
func syntaxError(root *sitter.Node) error {
	bad := firstError(root)
	if bad == nil {
		return errorAt(root, "invalid syntax")
	}
	if bad.IsMissing() {
		return errorAt(bad, "missing %s", bad.Type())
	}
	return errorAt(bad, "invalid syntax")
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}
