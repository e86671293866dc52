// Package tools implements the Tool Foundry's concrete tool set: file
// system access, AST-level structure editing, project-wide rename,
// execution, mission-log mutation, and project lifecycle tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

func schemaFor(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	s := reflector.Reflect(v)
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return raw
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func ok(content string) *models.ToolResult  { return &models.ToolResult{Content: content} }
func fail(content string) *models.ToolResult { return &models.ToolResult{Content: content, IsError: true} }

// ReadFileTool reads a sandboxed, project-relative file.
type ReadFileTool struct{}

type readFileParams struct {
	Path string `json:"path" jsonschema:"required,description=Project-relative path of the file to read"`
}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Reads the contents of a file within the project." }
func (ReadFileTool) Schema() json.RawMessage { return schemaFor(readFileParams{}) }

func (ReadFileTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	content, err := deps.Workspace.ReadFile(str(args, "path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(content), nil
}

// WriteFileTool writes literal content, or — when task_description is
// supplied instead of content — streams a coder-role completion through
// Generate, validates the result parses as Python before committing it,
// and only then writes and re-indexes the file.
type WriteFileTool struct {
	Reindex func(ctx context.Context, deps *toolfoundry.Deps, path, content string)

	// Generate streams a file body from a natural-language description,
	// broadcasting code_stream_chunk as it goes. Wired by internal/conductor,
	// which owns the LLM Streamer client; nil in contexts (e.g. tests) that
	// never exercise the task_description branch.
	Generate func(ctx context.Context, deps *toolfoundry.Deps, path, taskDescription string) (string, error)
}

type writeFileParams struct {
	Path            string `json:"path" jsonschema:"required,description=Project-relative path of the file to write"`
	Content         string `json:"content" jsonschema:"description=Literal file content to write"`
	TaskDescription string `json:"task_description" jsonschema:"description=If content is omitted, a natural-language description of the file to generate"`
}

func (WriteFileTool) Name() string { return "write_file" }
func (WriteFileTool) Description() string {
	return "Writes literal content to a file within the project, creating parent directories as needed. " +
		"If task_description is given instead of content, the file body is generated by the coder model and validated before writing."
}
func (WriteFileTool) Schema() json.RawMessage { return schemaFor(writeFileParams{}) }

func (t WriteFileTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	path := str(args, "path")
	if path == "" {
		return fail("Error: path is required"), nil
	}

	content := str(args, "content")
	if taskDescription := str(args, "task_description"); content == "" && taskDescription != "" {
		if t.Generate == nil {
			return fail("Error: task_description generation is unavailable in this context"), nil
		}
		generated, err := t.Generate(ctx, deps, path, taskDescription)
		if err != nil {
			return fail(fmt.Sprintf("Error: %v", err)), nil
		}
		if strings.HasSuffix(path, ".py") {
			if verr := pytree.New().Validate(ctx, []byte(generated)); verr != nil {
				return fail(fmt.Sprintf("Error: generated code for %s failed syntax validation: %v", path, verr)), nil
			}
		}
		content = generated
	}

	if deps.Hub != nil {
		deps.Hub.BroadcastToUser(broadcast.Message{
			Type:    broadcast.TypeFileWritingPending,
			Payload: map[string]string{"filePath": path},
		}, deps.UserID)
	}
	if err := deps.Workspace.WriteFile(path, content); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if t.Reindex != nil {
		t.Reindex(ctx, deps, path, content)
	}
	return ok(fmt.Sprintf("Wrote %d bytes to %s", len(content), path)), nil
}

// DeleteFileTool removes a sandboxed, project-relative file.
type DeleteFileTool struct{}

type deleteFileParams struct {
	Path string `json:"path" jsonschema:"required,description=Project-relative path of the file to delete"`
}

func (DeleteFileTool) Name() string        { return "delete_file" }
func (DeleteFileTool) Description() string { return "Deletes a file within the project." }
func (DeleteFileTool) Schema() json.RawMessage { return schemaFor(deleteFileParams{}) }

func (DeleteFileTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	abs, err := deps.Workspace.Resolve(str(args, "path"))
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := removeFile(abs); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Deleted " + str(args, "path")), nil
}

// GetFileTreeTool returns a recursive snapshot of the project.
type GetFileTreeTool struct{}

func (GetFileTreeTool) Name() string        { return "get_file_tree" }
func (GetFileTreeTool) Description() string { return "Returns the project's file tree, excluding build and VCS noise directories." }
func (GetFileTreeTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (GetFileTreeTool) Execute(_ context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	tree, err := deps.Workspace.GetFileTree()
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(string(raw)), nil
}
