package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// structureEditTools are every tool in the §4.8 structure-editing
// family; all splice text at a tree-sitter-located byte offset rather
// than unparsing a mutated AST, since no Python unparser exists in the
// Go ecosystem this foundry draws from.
var structureEditTools = map[string]struct{}{
	"add_class_to_file": {}, "add_function_to_file": {}, "add_method_to_class": {},
	"add_parameter_to_function": {}, "add_decorator_to_function": {}, "append_to_function": {},
	"replace_node_in_file": {}, "replace_method_in_class": {}, "rename_symbol_in_file": {},
	"add_import": {}, "add_attribute_to_init": {},
}

func onWrite(ctx context.Context, deps *toolfoundry.Deps, reindex reindexFn, path, newContent string) error {
	if err := deps.Workspace.WriteFile(path, newContent); err != nil {
		return err
	}
	reindex(ctx, deps, path, newContent)
	return nil
}

type reindexFn func(ctx context.Context, deps *toolfoundry.Deps, path, content string)

// withSource reads a file, parses it, and hands the parser's
// definitions plus raw bytes to fn, which returns the new file content.
func withSource(deps *toolfoundry.Deps, path string, fn func(content []byte, defs []pytree.Definition) (string, error)) (string, error) {
	raw, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := []byte(raw)
	defs, err := pytree.New().Parse(contextTODO(), content)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return fn(content, defs)
}

func contextTODO() context.Context { return context.Background() }

func findDef(defs []pytree.Definition, name, parent string) *pytree.Definition {
	for i := range defs {
		if defs[i].Name == name && defs[i].ParentClass == parent {
			return &defs[i]
		}
	}
	return nil
}

// AddFunctionToFileTool appends a new top-level function to the end of
// a file.
type AddFunctionToFileTool struct{ Reindex reindexFn }

type addFunctionParams struct {
	Path       string `json:"path" jsonschema:"required"`
	SourceCode string `json:"source_code" jsonschema:"required,description=Full source of the new function, including def line and body"`
}

func (AddFunctionToFileTool) Name() string        { return "add_function_to_file" }
func (AddFunctionToFileTool) Description() string { return "Appends a new top-level function to a file." }
func (AddFunctionToFileTool) Schema() json.RawMessage { return schemaFor(addFunctionParams{}) }

func (t AddFunctionToFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	newText, err := withSource(deps, path, func(content []byte, _ []pytree.Definition) (string, error) {
		trimmed := strings.TrimRight(string(content), "\n")
		return trimmed + "\n\n\n" + strings.TrimSpace(str(args, "source_code")) + "\n", nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Added function to " + path), nil
}

// AddClassToFileTool appends a new top-level class to the end of a file.
type AddClassToFileTool struct{ Reindex reindexFn }

type addClassParams struct {
	Path       string `json:"path" jsonschema:"required"`
	SourceCode string `json:"source_code" jsonschema:"required,description=Full source of the new class, including class line and body"`
}

func (AddClassToFileTool) Name() string        { return "add_class_to_file" }
func (AddClassToFileTool) Description() string { return "Appends a new top-level class to a file." }
func (AddClassToFileTool) Schema() json.RawMessage { return schemaFor(addClassParams{}) }

func (t AddClassToFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	newText, err := withSource(deps, path, func(content []byte, _ []pytree.Definition) (string, error) {
		trimmed := strings.TrimRight(string(content), "\n")
		return trimmed + "\n\n\n" + strings.TrimSpace(str(args, "source_code")) + "\n", nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Added class to " + path), nil
}

// AddMethodToClassTool appends a new method to the end of a class body.
type AddMethodToClassTool struct{ Reindex reindexFn }

type addMethodParams struct {
	Path       string `json:"path" jsonschema:"required"`
	ClassName  string `json:"class_name" jsonschema:"required"`
	SourceCode string `json:"source_code" jsonschema:"required,description=Full source of the new method, including def line and body, indented for class scope"`
}

func (AddMethodToClassTool) Name() string        { return "add_method_to_class" }
func (AddMethodToClassTool) Description() string { return "Appends a new method to the end of a class's body." }
func (AddMethodToClassTool) Schema() json.RawMessage { return schemaFor(addMethodParams{}) }

func (t AddMethodToClassTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	className := str(args, "class_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		class := findDef(defs, className, "")
		if class == nil {
			return "", fmt.Errorf("class %s not found in %s", className, path)
		}
		method := "\n\n    " + strings.ReplaceAll(strings.TrimSpace(str(args, "source_code")), "\n", "\n    ") + "\n"
		return string(content[:class.EndByte]) + method + string(content[class.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Added method to class %s in %s", className, path)), nil
}

// AppendToFunctionTool appends statements to the end of a function's
// body.
type AppendToFunctionTool struct{ Reindex reindexFn }

type appendToFunctionParams struct {
	Path         string `json:"path" jsonschema:"required"`
	FunctionName string `json:"function_name" jsonschema:"required"`
	Code         string `json:"code" jsonschema:"required,description=Statements to append to the function body"`
}

func (AppendToFunctionTool) Name() string        { return "append_to_function" }
func (AppendToFunctionTool) Description() string { return "Appends statements to the end of a function's body." }
func (AppendToFunctionTool) Schema() json.RawMessage { return schemaFor(appendToFunctionParams{}) }

func (t AppendToFunctionTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	fnName := str(args, "function_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		fn := findDef(defs, fnName, "")
		if fn == nil {
			fn = findDefAnyParent(defs, fnName)
		}
		if fn == nil {
			return "", fmt.Errorf("function %s not found in %s", fnName, path)
		}
		indent := "    "
		if fn.ParentClass != "" {
			indent = "        "
		}
		appended := "\n" + indent + strings.ReplaceAll(strings.TrimSpace(str(args, "code")), "\n", "\n"+indent) + "\n"
		return string(content[:fn.EndByte]) + appended + string(content[fn.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Appended to function %s in %s", fnName, path)), nil
}

func findDefAnyParent(defs []pytree.Definition, name string) *pytree.Definition {
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i]
		}
	}
	return nil
}

// ReplaceNodeInFileTool replaces a named top-level function or class
// definition's full source with new text.
type ReplaceNodeInFileTool struct{ Reindex reindexFn }

type replaceNodeParams struct {
	Path       string `json:"path" jsonschema:"required"`
	NodeName   string `json:"node_name" jsonschema:"required"`
	SourceCode string `json:"source_code" jsonschema:"required"`
}

func (ReplaceNodeInFileTool) Name() string        { return "replace_node_in_file" }
func (ReplaceNodeInFileTool) Description() string { return "Replaces a top-level function or class definition with new source." }
func (ReplaceNodeInFileTool) Schema() json.RawMessage { return schemaFor(replaceNodeParams{}) }

func (t ReplaceNodeInFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	name := str(args, "node_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		node := findDef(defs, name, "")
		if node == nil {
			return "", fmt.Errorf("node %s not found in %s", name, path)
		}
		return string(content[:node.StartByte]) + strings.TrimSpace(str(args, "source_code")) + string(content[node.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Replaced %s in %s", name, path)), nil
}

// ReplaceMethodInClassTool replaces one method's full source within a
// named class.
type ReplaceMethodInClassTool struct{ Reindex reindexFn }

type replaceMethodParams struct {
	Path       string `json:"path" jsonschema:"required"`
	ClassName  string `json:"class_name" jsonschema:"required"`
	MethodName string `json:"method_name" jsonschema:"required"`
	SourceCode string `json:"source_code" jsonschema:"required"`
}

func (ReplaceMethodInClassTool) Name() string        { return "replace_method_in_class" }
func (ReplaceMethodInClassTool) Description() string { return "Replaces one method's source within a class." }
func (ReplaceMethodInClassTool) Schema() json.RawMessage { return schemaFor(replaceMethodParams{}) }

func (t ReplaceMethodInClassTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	className := str(args, "class_name")
	methodName := str(args, "method_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		method := findDef(defs, methodName, className)
		if method == nil {
			return "", fmt.Errorf("method %s not found on class %s in %s", methodName, className, path)
		}
		replacement := strings.ReplaceAll(strings.TrimSpace(str(args, "source_code")), "\n", "\n    ")
		return string(content[:method.StartByte]) + replacement + string(content[method.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Replaced method %s on class %s in %s", methodName, className, path)), nil
}

// AddImportTool inserts an import statement after the file's existing
// leading import block (or at the top of the file if there is none).
type AddImportTool struct{ Reindex reindexFn }

type addImportParams struct {
	Path         string `json:"path" jsonschema:"required"`
	ImportStatement string `json:"import_statement" jsonschema:"required,description=e.g. 'import os' or 'from typing import Optional'"`
}

func (AddImportTool) Name() string        { return "add_import" }
func (AddImportTool) Description() string { return "Adds an import statement to a file if not already present." }
func (AddImportTool) Schema() json.RawMessage { return schemaFor(addImportParams{}) }

func (t AddImportTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	stmt := strings.TrimSpace(str(args, "import_statement"))

	existing, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if containsLine(existing, stmt) {
		return ok("Import already present in " + path), nil
	}

	lines := strings.Split(existing, "\n")
	insertAt := 0
	for insertAt < len(lines) && (strings.HasPrefix(lines[insertAt], "import ") || strings.HasPrefix(lines[insertAt], "from ")) {
		insertAt++
	}
	out := append([]string{}, lines[:insertAt]...)
	out = append(out, stmt)
	out = append(out, lines[insertAt:]...)
	newText := strings.Join(out, "\n")

	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Added import to " + path), nil
}

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}
