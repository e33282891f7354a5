package scan

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language identifies a grammar supported by the structure analyzer.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangRust       Language = "rust"
)

// LanguageFor maps a file extension to a Language.
func LanguageFor(path string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo, true
	case ".py":
		return LangPython, true
	case ".ts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".rs":
		return LangRust, true
	}
	return "", false
}

// grammar lists the node kinds the analyzer cares about for one language.
type grammar struct {
	functions map[string]bool
	nesting   map[string]bool
	// elseKinds wrap an `else if` so it does not count as an extra level.
	elseKinds map[string]bool
	ifKind    string
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

var grammars = map[Language]grammar{
	LangGo: {
		functions: set("function_declaration", "method_declaration", "func_literal"),
		nesting:   set("if_statement", "for_statement", "expression_switch_statement", "type_switch_statement", "select_statement"),
		ifKind:    "if_statement",
	},
	LangPython: {
		functions: set("function_definition", "lambda"),
		nesting:   set("if_statement", "for_statement", "while_statement", "try_statement", "with_statement", "match_statement"),
		ifKind:    "if_statement",
	},
	LangTypeScript: {
		functions: set("function_declaration", "method_definition", "arrow_function", "function_expression", "generator_function_declaration"),
		nesting:   set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "switch_statement", "try_statement"),
		elseKinds: set("else_clause"),
		ifKind:    "if_statement",
	},
	LangRust: {
		functions: set("function_item", "closure_expression"),
		nesting:   set("if_expression", "for_expression", "while_expression", "loop_expression", "match_expression"),
		elseKinds: set("else_clause"),
		ifKind:    "if_expression",
	},
}

func init() {
	grammars[LangTSX] = grammars[LangTypeScript]
}

// IssueKind classifies a structural trigger.
type IssueKind string

const (
	IssueLongFunction IssueKind = "long-function"
	IssueDeepNesting  IssueKind = "deep-nesting"
)

// Issue is a structural trigger found in one function.
type Issue struct {
	Kind      IssueKind
	Function  string
	StartLine int
	EndLine   int
	// Value is the measured line count or nesting depth.
	Value int
	Limit int
}

// StructureAnalyzer flags long and deeply nested functions using tree-sitter
// grammars. A parser is created per call, so one analyzer can serve
// concurrent scans.
type StructureAnalyzer struct {
	languages        map[Language]*tree_sitter.Language
	maxFunctionLines int
	maxNesting       int
}

// NewStructureAnalyzer creates an analyzer with Go, Python, TypeScript and
// Rust grammars. Limits of zero or less disable the corresponding check.
func NewStructureAnalyzer(maxFunctionLines, maxNesting int) *StructureAnalyzer {
	return &StructureAnalyzer{
		languages: map[Language]*tree_sitter.Language{
			LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			LangTSX:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
			LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		maxFunctionLines: maxFunctionLines,
		maxNesting:       maxNesting,
	}
}

// Supports reports whether path has a grammar.
func (a *StructureAnalyzer) Supports(path string) bool {
	lang, ok := LanguageFor(path)
	if !ok {
		return false
	}
	_, ok = a.languages[lang]
	return ok
}

// Analyze parses source and returns issues in source order of the functions
// they belong to.
func (a *StructureAnalyzer) Analyze(path string, source []byte) ([]Issue, error) {
	lang, ok := LanguageFor(path)
	if !ok {
		return nil, fmt.Errorf("scan: unsupported language for %s", path)
	}
	tsLang := a.languages[lang]

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("scan: set language %s: %w", lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("scan: tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	return a.walk(tree.RootNode(), source, grammars[lang]), nil
}

// fnState tracks the function currently being walked.
type fnState struct {
	name       string
	start, end int
	deepest    int
}

type frame struct {
	node       *tree_sitter.Node
	parentKind string
	depth      int
	fn         *fnState
}

// walk visits the tree with an explicit stack. Nesting depth is measured
// from the enclosing function and resets inside nested functions.
func (a *StructureAnalyzer) walk(root *tree_sitter.Node, source []byte, g grammar) []Issue {
	var fns []*fnState
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := f.node
		kind := node.Kind()

		depth, fn := f.depth, f.fn
		switch {
		case g.functions[kind]:
			fn = &fnState{
				name:  functionName(node, source),
				start: int(node.StartPosition().Row) + 1,
				end:   int(node.EndPosition().Row) + 1,
			}
			fns = append(fns, fn)
			depth = 0
		case g.nesting[kind] && fn != nil:
			elseIf := kind == g.ifKind && (f.parentKind == g.ifKind || g.elseKinds[f.parentKind])
			if !elseIf {
				depth++
			}
			fn.deepest = max(fn.deepest, depth)
		}

		// Push children in reverse so they are visited in source order.
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			child := node.Child(uint(i))
			if child == nil {
				continue
			}
			stack = append(stack, frame{node: child, parentKind: kind, depth: depth, fn: fn})
		}
	}

	var issues []Issue
	for _, fn := range fns {
		if lines := fn.end - fn.start + 1; a.maxFunctionLines > 0 && lines > a.maxFunctionLines {
			issues = append(issues, Issue{
				Kind: IssueLongFunction, Function: fn.name,
				StartLine: fn.start, EndLine: fn.end,
				Value: lines, Limit: a.maxFunctionLines,
			})
		}
		if a.maxNesting > 0 && fn.deepest > a.maxNesting {
			issues = append(issues, Issue{
				Kind: IssueDeepNesting, Function: fn.name,
				StartLine: fn.start, EndLine: fn.end,
				Value: fn.deepest, Limit: a.maxNesting,
			})
		}
	}
	return issues
}

func functionName(node *tree_sitter.Node, source []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Utf8Text(source)
	}
	return "<anonymous>"
}
