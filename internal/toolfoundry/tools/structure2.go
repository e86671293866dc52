package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/internal/symbolindex"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// AddParameterToFunctionTool inserts a new parameter into a function's
// signature, just before the closing parenthesis.
type AddParameterToFunctionTool struct{ Reindex reindexFn }

type addParameterParams struct {
	Path         string `json:"path" jsonschema:"required"`
	FunctionName string `json:"function_name" jsonschema:"required"`
	ParameterDef string `json:"parameter_def" jsonschema:"required,description=e.g. 'timeout: int = 30'"`
}

func (AddParameterToFunctionTool) Name() string        { return "add_parameter_to_function" }
func (AddParameterToFunctionTool) Description() string { return "Adds a parameter to an existing function's signature." }
func (AddParameterToFunctionTool) Schema() json.RawMessage { return schemaFor(addParameterParams{}) }

func (t AddParameterToFunctionTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	fnName := str(args, "function_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		fn := findDefAnyParent(defs, fnName)
		if fn == nil {
			return "", fmt.Errorf("function %s not found in %s", fnName, path)
		}
		header := string(content[fn.StartByte:fn.EndByte])
		openIdx := strings.Index(header, "(")
		closeIdx := strings.Index(header, ")")
		if openIdx < 0 || closeIdx < 0 || closeIdx < openIdx {
			return "", fmt.Errorf("could not locate parameter list for %s", fnName)
		}
		params := strings.TrimSpace(header[openIdx+1 : closeIdx])
		var newParams string
		if params == "" {
			newParams = str(args, "parameter_def")
		} else {
			newParams = params + ", " + str(args, "parameter_def")
		}
		newHeader := header[:openIdx+1] + newParams + header[closeIdx:]
		return string(content[:fn.StartByte]) + newHeader + string(content[fn.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Added parameter to %s in %s", fnName, path)), nil
}

// AddDecoratorToFunctionTool prepends a decorator line directly above a
// function's def line.
type AddDecoratorToFunctionTool struct{ Reindex reindexFn }

type addDecoratorParams struct {
	Path         string `json:"path" jsonschema:"required"`
	FunctionName string `json:"function_name" jsonschema:"required"`
	Decorator    string `json:"decorator" jsonschema:"required,description=e.g. '@staticmethod'"`
}

func (AddDecoratorToFunctionTool) Name() string        { return "add_decorator_to_function" }
func (AddDecoratorToFunctionTool) Description() string { return "Adds a decorator above a function definition." }
func (AddDecoratorToFunctionTool) Schema() json.RawMessage { return schemaFor(addDecoratorParams{}) }

func (t AddDecoratorToFunctionTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	fnName := str(args, "function_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		fn := findDefAnyParent(defs, fnName)
		if fn == nil {
			return "", fmt.Errorf("function %s not found in %s", fnName, path)
		}
		indent := leadingIndent(content, fn.StartByte)
		decorator := indent + strings.TrimSpace(str(args, "decorator")) + "\n"
		return string(content[:fn.StartByte]) + decorator + string(content[fn.StartByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Added decorator to %s in %s", fnName, path)), nil
}

func leadingIndent(content []byte, at uint32) string {
	start := at
	for start > 0 && content[start-1] != '\n' {
		start--
	}
	var indent strings.Builder
	for i := start; i < at && (content[i] == ' ' || content[i] == '\t'); i++ {
		indent.WriteByte(content[i])
	}
	return indent.String()
}

// AddAttributeToInitTool appends an attribute assignment to the end of a
// class's __init__ method body.
type AddAttributeToInitTool struct{ Reindex reindexFn }

type addAttributeParams struct {
	Path       string `json:"path" jsonschema:"required"`
	ClassName  string `json:"class_name" jsonschema:"required"`
	Assignment string `json:"assignment" jsonschema:"required,description=e.g. 'self.retries = 0'"`
}

func (AddAttributeToInitTool) Name() string        { return "add_attribute_to_init" }
func (AddAttributeToInitTool) Description() string { return "Appends an attribute assignment to a class's __init__ body." }
func (AddAttributeToInitTool) Schema() json.RawMessage { return schemaFor(addAttributeParams{}) }

func (t AddAttributeToInitTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	className := str(args, "class_name")
	newText, err := withSource(deps, path, func(content []byte, defs []pytree.Definition) (string, error) {
		init := findDef(defs, "__init__", className)
		if init == nil {
			return "", fmt.Errorf("__init__ not found on class %s in %s", className, path)
		}
		appended := "\n        " + strings.TrimSpace(str(args, "assignment")) + "\n"
		return string(content[:init.EndByte]) + appended + string(content[init.EndByte:]), nil
	})
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Added attribute to __init__ on %s in %s", className, path)), nil
}

// RenameSymbolInFileTool performs a single-file, whole-word textual
// rename of a symbol. It is the per-file primitive the project-wide
// RenameSymbolTool applies to every affected file.
type RenameSymbolInFileTool struct{ Reindex reindexFn }

type renameInFileParams struct {
	Path    string `json:"path" jsonschema:"required"`
	OldName string `json:"old_name" jsonschema:"required"`
	NewName string `json:"new_name" jsonschema:"required"`
}

func (RenameSymbolInFileTool) Name() string        { return "rename_symbol_in_file" }
func (RenameSymbolInFileTool) Description() string { return "Renames every whole-word occurrence of a symbol within a single file." }
func (RenameSymbolInFileTool) Schema() json.RawMessage { return schemaFor(renameInFileParams{}) }

func (t RenameSymbolInFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	content, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	newText := renameWholeWord(content, str(args, "old_name"), str(args, "new_name"))
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Renamed %s to %s in %s", str(args, "old_name"), str(args, "new_name"), path)), nil
}

func renameWholeWord(text, old, new string) string {
	var b strings.Builder
	i := 0
	for i < len(text) {
		if matchesWholeWord(text, i, old) {
			b.WriteString(new)
			i += len(old)
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func matchesWholeWord(text string, i int, word string) bool {
	if word == "" || i+len(word) > len(text) || text[i:i+len(word)] != word {
		return false
	}
	if i > 0 && isIdentByte(text[i-1]) {
		return false
	}
	if i+len(word) < len(text) && isIdentByte(text[i+len(word)]) {
		return false
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// RenameSymbolTool renames a symbol project-wide: it consults the
// Symbol Index to find every file that defines or references the
// symbol, then applies the whole-word rename to each.
type RenameSymbolTool struct {
	Reindex reindexFn
}

type renameSymbolParams struct {
	OldName string `json:"old_name" jsonschema:"required"`
	NewName string `json:"new_name" jsonschema:"required"`
}

func (RenameSymbolTool) Name() string        { return "rename_symbol" }
func (RenameSymbolTool) Description() string { return "Renames a symbol across every file in the project that defines or references it." }
func (RenameSymbolTool) Schema() json.RawMessage { return schemaFor(renameSymbolParams{}) }

func (t RenameSymbolTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	oldName := str(args, "old_name")
	newName := str(args, "new_name")
	if deps.SymbolIndex == nil {
		return fail("Error: symbol index unavailable"), nil
	}

	files := affectedFiles(deps.SymbolIndex, oldName)
	if len(files) == 0 {
		return fail(fmt.Sprintf("Error: no definitions or references found for %s", oldName)), nil
	}

	var changed []string
	for path := range files {
		content, err := deps.Workspace.ReadFile(path)
		if err != nil {
			return fail(fmt.Sprintf("Error: %v", err)), nil
		}
		newText := renameWholeWord(content, oldName, newName)
		if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
			return fail(fmt.Sprintf("Error: %v", err)), nil
		}
		changed = append(changed, path)
	}
	return ok(fmt.Sprintf("Renamed %s to %s across %d file(s): %s", oldName, newName, len(changed), strings.Join(changed, ", "))), nil
}

func affectedFiles(idx *symbolindex.Index, name string) map[string]struct{} {
	files := make(map[string]struct{})
	for _, sym := range idx.FindDefinition(name) {
		files[sym.FilePath] = struct{}{}
	}
	for _, sym := range idx.FindReferences(name) {
		files[sym.FilePath] = struct{}{}
	}
	return files
}
