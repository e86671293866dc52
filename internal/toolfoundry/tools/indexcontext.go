package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// IndexProjectContextTool (re)builds the Vector Index from scratch by
// walking every file currently in the project. The path argument is
// accepted for schema parity with the original tool (which safety-checks
// a target path is within project_root) but the walk always covers the
// whole sandboxed workspace, since Go's path Sandbox already guarantees
// nothing outside project_root is ever reachable.
type IndexProjectContextTool struct{}

type indexProjectContextParams struct {
	Path string `json:"path" jsonschema:"description=Informational; indexing always covers the whole sandboxed project"`
}

func (IndexProjectContextTool) Name() string { return "index_project_context" }
func (IndexProjectContextTool) Description() string {
	return "Rebuilds the project's semantic code index from the current state of every file."
}
func (IndexProjectContextTool) Schema() json.RawMessage { return schemaFor(indexProjectContextParams{}) }

func (IndexProjectContextTool) Execute(ctx context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	if deps.VectorIndex == nil {
		return fail("Error: vector index unavailable"), nil
	}
	files, err := deps.Workspace.AllFiles()
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	if err := deps.VectorIndex.ReindexProject(ctx, files); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Indexed %d file(s).", len(files))), nil
}
