package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// AppendToFileTool appends literal content to the end of an existing (or
// not-yet-existing) file.
type AppendToFileTool struct{ Reindex reindexFn }

type appendToFileParams struct {
	Path    string `json:"path" jsonschema:"required"`
	Content string `json:"content" jsonschema:"required"`
}

func (AppendToFileTool) Name() string        { return "append_to_file" }
func (AppendToFileTool) Description() string { return "Appends content to the end of a file, creating it if necessary." }
func (AppendToFileTool) Schema() json.RawMessage { return schemaFor(appendToFileParams{}) }

func (t AppendToFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	existing, err := deps.Workspace.ReadFile(path)
	if err != nil {
		existing = ""
	}
	newText := existing + str(args, "content")
	if err := onWrite(ctx, deps, t.Reindex, path, newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Appended to " + path), nil
}

// CreateDirectoryTool creates a project-relative directory, including
// parents.
type CreateDirectoryTool struct{}

type createDirectoryParams struct {
	Path string `json:"path" jsonschema:"required"`
}

func (CreateDirectoryTool) Name() string        { return "create_directory" }
func (CreateDirectoryTool) Description() string { return "Creates a directory within the project, including any missing parents." }
func (CreateDirectoryTool) Schema() json.RawMessage { return schemaFor(createDirectoryParams{}) }

func (CreateDirectoryTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	abs, err := deps.Workspace.Resolve(str(args, "path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Created directory " + str(args, "path")), nil
}

// CreatePackageInitTool creates an empty __init__.py inside a directory,
// marking it as a Python package.
type CreatePackageInitTool struct{}

type createPackageInitParams struct {
	Path string `json:"path" jsonschema:"required,description=Directory to mark as a package"`
}

func (CreatePackageInitTool) Name() string        { return "create_package_init" }
func (CreatePackageInitTool) Description() string { return "Creates an empty __init__.py in a directory to mark it as a Python package." }
func (CreatePackageInitTool) Schema() json.RawMessage { return schemaFor(createPackageInitParams{}) }

func (CreatePackageInitTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	dir := str(args, "path")
	initPath := filepath.ToSlash(filepath.Join(dir, "__init__.py"))
	if err := deps.Workspace.WriteFile(initPath, ""); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Created " + initPath), nil
}

// DeleteDirectoryTool recursively removes a project-relative directory.
type DeleteDirectoryTool struct{}

type deleteDirectoryParams struct {
	Path string `json:"path" jsonschema:"required"`
}

func (DeleteDirectoryTool) Name() string        { return "delete_directory" }
func (DeleteDirectoryTool) Description() string { return "Recursively deletes a directory within the project." }
func (DeleteDirectoryTool) Schema() json.RawMessage { return schemaFor(deleteDirectoryParams{}) }

func (DeleteDirectoryTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	abs, err := deps.Workspace.Resolve(str(args, "path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := os.RemoveAll(abs); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Deleted directory " + str(args, "path")), nil
}

// CopyFileTool copies a file within the project, from source_path to
// destination_path.
type CopyFileTool struct{}

type copyFileParams struct {
	SourcePath      string `json:"source_path" jsonschema:"required"`
	DestinationPath string `json:"destination_path" jsonschema:"required"`
}

func (CopyFileTool) Name() string        { return "copy_file" }
func (CopyFileTool) Description() string { return "Copies a file within the project." }
func (CopyFileTool) Schema() json.RawMessage { return schemaFor(copyFileParams{}) }

func (CopyFileTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	src, err := deps.Workspace.Resolve(str(args, "source_path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	dst, err := deps.Workspace.Resolve(str(args, "destination_path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := copyFile(src, dst); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Copied %s to %s", str(args, "source_path"), str(args, "destination_path"))), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return apperrors.NotFound("source file not found", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.Fatal("create destination directory", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return apperrors.Fatal("create destination file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return apperrors.Fatal("copy file contents", err)
	}
	return nil
}

// MoveFileTool moves/renames a file within the project.
type MoveFileTool struct{}

type moveFileParams struct {
	SourcePath      string `json:"source_path" jsonschema:"required"`
	DestinationPath string `json:"destination_path" jsonschema:"required"`
}

func (MoveFileTool) Name() string        { return "move_file" }
func (MoveFileTool) Description() string { return "Moves or renames a file within the project." }
func (MoveFileTool) Schema() json.RawMessage { return schemaFor(moveFileParams{}) }

func (MoveFileTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	src, err := deps.Workspace.Resolve(str(args, "source_path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	dst, err := deps.Workspace.Resolve(str(args, "destination_path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := os.Rename(src, dst); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Moved %s to %s", str(args, "source_path"), str(args, "destination_path"))), nil
}

// CreateProjectTool creates a brand new project workspace directory,
// exposed as an LLM-invocable tool in addition to the HTTP CRUD surface.
type CreateProjectTool struct {
	NewProject func(userID int64, name string) error
}

type createProjectParams struct {
	Name string `json:"name" jsonschema:"required"`
}

func (CreateProjectTool) Name() string        { return "create_project" }
func (CreateProjectTool) Description() string { return "Creates a new, empty project workspace." }
func (CreateProjectTool) Schema() json.RawMessage { return schemaFor(createProjectParams{}) }

func (t CreateProjectTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	if t.NewProject == nil {
		return fail("Error: project creation is unavailable in this context"), nil
	}
	name := str(args, "name")
	if err := t.NewProject(deps.UserID, name); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Created project " + name), nil
}
