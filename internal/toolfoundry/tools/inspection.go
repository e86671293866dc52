package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// ListFilesTool returns the flattened, newline-joined list of every file
// path in the project, for callers that only need names rather than the
// full nested tree get_file_tree returns.
type ListFilesTool struct{}

func (ListFilesTool) Name() string            { return "list_files" }
func (ListFilesTool) Description() string     { return "Lists every file path in the project, one per line." }
func (ListFilesTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (ListFilesTool) Execute(_ context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	tree, err := deps.Workspace.GetFileTree()
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	var paths []string
	flatten(tree, &paths)
	sort.Strings(paths)
	return ok(strings.Join(paths, "\n")), nil
}

func flatten(node models.FileNode, out *[]string) {
	if node.Kind == "file" {
		*out = append(*out, node.Path)
		return
	}
	for _, c := range node.Children {
		flatten(c, out)
	}
}

// GetDependenciesTool reads back the project's requirements.txt as a
// parsed list of requirement lines.
type GetDependenciesTool struct{}

func (GetDependenciesTool) Name() string        { return "get_dependencies" }
func (GetDependenciesTool) Description() string { return "Returns the parsed contents of requirements.txt." }
func (GetDependenciesTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (GetDependenciesTool) Execute(_ context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	content, err := deps.Workspace.ReadFile("requirements.txt")
	if err != nil {
		return ok(""), nil
	}
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return ok(strings.Join(lines, "\n")), nil
}

// FindDefinitionTool wraps the Symbol Index's FindDefinition query.
type FindDefinitionTool struct{}

type findDefinitionParams struct {
	Name string `json:"name" jsonschema:"required,description=Symbol name to look up"`
}

func (FindDefinitionTool) Name() string        { return "find_definition" }
func (FindDefinitionTool) Description() string { return "Finds every definition of a function, method, or class by name." }
func (FindDefinitionTool) Schema() json.RawMessage { return schemaFor(findDefinitionParams{}) }

func (FindDefinitionTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	if deps.SymbolIndex == nil {
		return fail("Error: symbol index unavailable"), nil
	}
	defs := deps.SymbolIndex.FindDefinition(str(args, "name"))
	if len(defs) == 0 {
		return ok("No definitions found."), nil
	}
	var lines []string
	for _, d := range defs {
		lines = append(lines, fmt.Sprintf("%s (%s) at %s:%d", d.Name, d.Kind, d.FilePath, d.Line))
	}
	return ok(strings.Join(lines, "\n")), nil
}

// FindReferencesTool wraps the Symbol Index's FindReferences query.
type FindReferencesTool struct{}

type findReferencesParams struct {
	Name string `json:"name" jsonschema:"required,description=Symbol name to look up callers of"`
}

func (FindReferencesTool) Name() string        { return "find_references" }
func (FindReferencesTool) Description() string { return "Finds every symbol that calls the named function or method." }
func (FindReferencesTool) Schema() json.RawMessage { return schemaFor(findReferencesParams{}) }

func (FindReferencesTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	if deps.SymbolIndex == nil {
		return fail("Error: symbol index unavailable"), nil
	}
	refs := deps.SymbolIndex.FindReferences(str(args, "name"))
	if len(refs) == 0 {
		return ok("No references found."), nil
	}
	var lines []string
	for _, r := range refs {
		lines = append(lines, fmt.Sprintf("%s (%s) at %s:%d", r.Name, r.Kind, r.FilePath, r.Line))
	}
	return ok(strings.Join(lines, "\n")), nil
}

// ListFunctionsInFileTool parses a file and reports its top-level
// function and class names, plus each class method as Class.method.
type ListFunctionsInFileTool struct{}

type listFunctionsParams struct {
	Path string `json:"path" jsonschema:"required"`
}

func (ListFunctionsInFileTool) Name() string        { return "list_functions_in_file" }
func (ListFunctionsInFileTool) Description() string { return "Lists the top-level functions and classes defined in a file, and the methods of each class." }
func (ListFunctionsInFileTool) Schema() json.RawMessage { return schemaFor(listFunctionsParams{}) }

func (ListFunctionsInFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	content, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	defs, err := pytree.New().Parse(ctx, []byte(content))
	if err != nil {
		return fail(fmt.Sprintf("Error: could not parse %s: %v", path, err)), nil
	}
	var lines []string
	for _, d := range defs {
		if d.Kind == "method" {
			lines = append(lines, fmt.Sprintf("%s.%s (method)", d.ParentClass, d.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", d.Name, d.Kind))
	}
	if len(lines) == 0 {
		return ok("No top-level definitions found."), nil
	}
	return ok(strings.Join(lines, "\n")), nil
}

// GetCodeForTool returns the verbatim source of one named definition in
// a file, located by the shared tree-sitter parse.
type GetCodeForTool struct{}

type getCodeForParams struct {
	Path string `json:"path" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required,description=Name of the function, method, or class"`
}

func (GetCodeForTool) Name() string        { return "get_code_for" }
func (GetCodeForTool) Description() string { return "Returns the source text of a named function, method, or class in a file." }
func (GetCodeForTool) Schema() json.RawMessage { return schemaFor(getCodeForParams{}) }

func (GetCodeForTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	name := str(args, "name")
	content, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	defs, err := pytree.New().Parse(ctx, []byte(content))
	if err != nil {
		return fail(fmt.Sprintf("Error: could not parse %s: %v", path, err)), nil
	}
	def := findDefAnyParent(defs, name)
	if def == nil {
		return fail(fmt.Sprintf("Error: %s not found in %s", name, path)), nil
	}
	return ok(content[def.StartByte:def.EndByte]), nil
}

// LintFileTool runs a syntax-only validation pass over one file: it
// parses the file and reports success or the parse failure, without
// mutating anything. Distinct from the mission-level Polish Pass, which
// applies semantic fixes across the whole diff.
type LintFileTool struct{}

type lintFileParams struct {
	Path string `json:"path" jsonschema:"required"`
}

func (LintFileTool) Name() string        { return "lint_file" }
func (LintFileTool) Description() string { return "Validates that a file parses as syntactically correct Python." }
func (LintFileTool) Schema() json.RawMessage { return schemaFor(lintFileParams{}) }

func (LintFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	content, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if strings.TrimSpace(content) == "" {
		return ok(path + " is empty; nothing to lint."), nil
	}
	if err := pytree.New().Validate(ctx, []byte(content)); err != nil {
		return fail(fmt.Sprintf("Error: %s failed to parse: %v", path, err)), nil
	}
	return ok(path + " parses cleanly."), nil
}
