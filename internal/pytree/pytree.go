// Package pytree provides the shared tree-sitter-python parsing used by
// the Symbol Index, the Vector Index's function/class chunker, and the
// structure-editing tool family. Go has no native equivalent of Python's
// ast module, so every component that needs to reason about Python
// source structurally goes through here.
package pytree

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Definition is a top-level or nested function/class definition found in
// a parsed source file, identified by its byte span so callers can
// either extract the source text or splice an edit at those offsets.
type Definition struct {
	Name        string
	Kind        string // "function" | "class" | "method"
	ParentClass string
	StartByte   uint32
	EndByte     uint32
	StartLine   int // 1-indexed
	EndLine     int
	Calls       []string
}

// Parser wraps a tree-sitter parser configured for Python.
type Parser struct {
	sitter *sitter.Parser
}

// New creates a Python-configured tree-sitter Parser.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{sitter: p}
}

// Parse returns every function, async function, class, and method
// definition in content, along with the set of call targets made inside
// each.
func (p *Parser) Parse(ctx context.Context, content []byte) ([]Definition, error) {
	tree, err := p.sitter.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var defs []Definition
	walk(tree.RootNode(), content, "", &defs)
	return defs, nil
}

// Validate reports whether content parses as syntactically well-formed
// Python. Tree-sitter is error-tolerant and never fails outright on bad
// input, so correctness is judged by walking the resulting tree for
// ERROR / MISSING nodes rather than by a parse error return.
func (p *Parser) Validate(ctx context.Context, content []byte) error {
	tree, err := p.sitter.ParseCtx(ctx, nil, content)
	if err != nil {
		return err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return fmt.Errorf("syntax error near byte %d", firstErrorByte(root))
	}
	return nil
}

func firstErrorByte(node *sitter.Node) uint32 {
	if node.IsError() || node.IsMissing() {
		return node.StartByte()
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() {
			return firstErrorByte(child)
		}
	}
	return node.StartByte()
}

func walk(node *sitter.Node, content []byte, parentClass string, defs *[]Definition) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			def := defFromNode(child, content, "class", parentClass)
			if def == nil {
				continue
			}
			*defs = append(*defs, *def)
			if body := child.ChildByFieldName("body"); body != nil {
				walk(body, content, def.Name, defs)
			}
		case "function_definition":
			kind := "function"
			if parentClass != "" {
				kind = "method"
			}
			def := defFromNode(child, content, kind, parentClass)
			if def != nil {
				*defs = append(*defs, *def)
			}
		case "decorated_definition":
			walk(child, content, parentClass, defs)
		default:
			walk(child, content, parentClass, defs)
		}
	}
}

func defFromNode(node *sitter.Node, content []byte, kind, parentClass string) *Definition {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	def := &Definition{
		Name:        string(content[nameNode.StartByte():nameNode.EndByte()]),
		Kind:        kind,
		ParentClass: parentClass,
		StartByte:   node.StartByte(),
		EndByte:     node.EndByte(),
		StartLine:   int(node.StartPoint().Row) + 1,
		EndLine:     int(node.EndPoint().Row) + 1,
	}
	if kind != "class" {
		if body := node.ChildByFieldName("body"); body != nil {
			seen := make(map[string]struct{})
			collectCalls(body, content, seen)
			for name := range seen {
				def.Calls = append(def.Calls, name)
			}
		}
	}
	return def
}

// collectCalls walks a function body collecting every call target name:
// f() -> "f", x.m() -> "m".
func collectCalls(node *sitter.Node, content []byte, seen map[string]struct{}) {
	if node.Type() == "call" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			switch fn.Type() {
			case "identifier":
				seen[string(content[fn.StartByte():fn.EndByte()])] = struct{}{}
			case "attribute":
				if attr := fn.ChildByFieldName("attribute"); attr != nil {
					seen[string(content[attr.StartByte():attr.EndByte()])] = struct{}{}
				}
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectCalls(node.NamedChild(i), content, seen)
	}
}
