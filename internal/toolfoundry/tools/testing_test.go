package tools

import (
	"context"
	"testing"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/session"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/vectorindex"
	"github.com/forgecode/agentcore/pkg/models"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, vectorindex.EmbeddingDim)
	}
	return out, nil
}

// newTestDeps assembles a real Deps bundle over a throwaway project
// workspace, the same way session.Manager builds one for a live request.
func newTestDeps(t *testing.T) *toolfoundry.Deps {
	t.Helper()
	mgr := session.NewManager(t.TempDir(), stubEmbedder{}, broadcast.NewHub(nil, nil), control.NewRegistry(), nil)
	if err := mgr.CreateProject(1, "proj"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	bundle, err := mgr.Open(context.Background(), 1, "proj", "client-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { bundle.Close() })
	return bundle.Deps
}

func mustWrite(t *testing.T, deps *toolfoundry.Deps, path, content string) {
	t.Helper()
	if err := deps.Workspace.WriteFile(path, content); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func assertOK(t *testing.T, res *models.ToolResult, err error) *models.ToolResult {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result: %s", res.Content)
	}
	return res
}

func assertFail(t *testing.T, res *models.ToolResult, err error) *models.ToolResult {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error (want a failure ToolResult instead): %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected a failure result, got success: %s", res.Content)
	}
	return res
}
