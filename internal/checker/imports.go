package checker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/target"
)

// ImportChecker structurally parses source files for import statements that
// resolve to the target, including string-literal dynamic imports. Highest
// per-reference weight in risk scoring.
type ImportChecker struct {
	opts Options
}

func NewImportChecker(opts Options) *ImportChecker {
	return &ImportChecker{opts: opts}
}

func (c *ImportChecker) Name() string       { return "import-reference" }
func (c *ImportChecker) Category() Category { return CategoryImport }

// sourceLanguages maps extensions to tree-sitter grammars.
var sourceLanguages = map[string]*sitter.Language{
	".py":  python.GetLanguage(),
	".js":  javascript.GetLanguage(),
	".jsx": javascript.GetLanguage(),
	".mjs": javascript.GetLanguage(),
	".ts":  javascript.GetLanguage(),
	".tsx": javascript.GetLanguage(),
	".go":  golang.GetLanguage(),
}

func (c *ImportChecker) FindDependencies(root string, t target.Target) ([]Reference, error) {
	m := newMatcher(root, t)
	var refs []Reference

	err := walkFiles(root, t, c.opts, func(absPath, relPath string) {
		lang, ok := sourceLanguages[strings.ToLower(filepath.Ext(absPath))]
		if !ok {
			return
		}
		source, err := os.ReadFile(absPath)
		if err != nil {
			c.opts.logger().Warn("import checker: unreadable source",
				zap.String("file", relPath), zap.Error(err))
			return
		}
		imports, err := extractImports(lang, source)
		if err != nil {
			// Malformed source must not block the scan.
			c.opts.logger().Warn("import checker: parse failed, skipping",
				zap.String("file", relPath), zap.Error(err))
			return
		}
		fromDir := filepath.ToSlash(filepath.Dir(relPath))
		for _, imp := range imports {
			if conf, ok := m.matchImport(imp.path, fromDir); ok {
				refs = append(refs, Reference{
					File:       relPath,
					Line:       imp.line,
					Category:   CategoryImport,
					Confidence: conf,
					Snippet:    truncate(imp.snippet, 120),
				})
			}
		}
	})
	return refs, err
}

type importStmt struct {
	path    string
	line    int
	snippet string
}

// extractImports walks the parse tree collecting import targets. Grammar
// node types covered: python import_statement / import_from_statement,
// javascript import_statement / require() / dynamic import(), go import_spec.
// String arguments to import-like calls cover dynamic imports.
func extractImports(lang *sitter.Language, source []byte) ([]importStmt, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var out []importStmt
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement", "import_from_statement":
			for _, p := range importTargets(n, source) {
				out = append(out, importStmt{path: p, line: int(n.StartPoint().Row) + 1, snippet: firstLine(n.Content(source))})
			}
		case "import_spec": // go
			out = append(out, importStmt{
				path:    strings.Trim(n.Content(source), `"`),
				line:    int(n.StartPoint().Row) + 1,
				snippet: firstLine(n.Content(source)),
			})
		case "call", "call_expression":
			if p, ok := callImportTarget(n, source); ok {
				out = append(out, importStmt{path: p, line: int(n.StartPoint().Row) + 1, snippet: firstLine(n.Content(source))})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out, nil
}

// importTargets pulls module names and string sources out of an import node.
func importTargets(n *sitter.Node, source []byte) []string {
	var targets []string
	var module string // "from X import a, b": X prefixes each name
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name", "relative_import":
			text := child.Content(source)
			if module == "" && n.Type() == "import_from_statement" {
				module = text
				targets = append(targets, text)
				continue
			}
			if module != "" {
				targets = append(targets, strings.TrimSuffix(module, ".")+"."+text)
			} else {
				targets = append(targets, text)
			}
		case "aliased_import":
			if name := child.NamedChild(0); name != nil {
				targets = append(targets, name.Content(source))
			}
		case "string": // javascript import "x"
			targets = append(targets, strings.Trim(child.Content(source), `"'`))
		}
	}
	return targets
}

// callImportTarget recognizes require("x"), import("x"), and
// importlib.import_module("x") style dynamic imports.
func callImportTarget(n *sitter.Node, source []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	name := fn.Content(source)
	if name != "require" && name != "import" && name != "__import__" &&
		!strings.HasSuffix(name, "import_module") {
		return "", false
	}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return "", false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "string" {
			return strings.Trim(arg.Content(source), `"'`), true
		}
	}
	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
