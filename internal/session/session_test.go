package session

import (
	"context"
	"testing"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/vectorindex"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, vectorindex.EmbeddingDim)
	}
	return out, nil
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), stubEmbedder{}, broadcast.NewHub(nil, nil), control.NewRegistry(), nil)
}

func TestNewProjectThenOpenAssemblesBundle(t *testing.T) {
	mgr := newManager(t)

	if err := mgr.NewProject(42)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}

	bundle, err := mgr.Open(context.Background(), 42, "widget", "client-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bundle.Close()

	if bundle.Deps.UserID != 42 || bundle.Deps.ClientID != "client-1" {
		t.Fatalf("unexpected deps: %+v", bundle.Deps)
	}
	if bundle.Deps.Workspace == nil || bundle.Deps.MissionLog == nil || bundle.Deps.VectorIndex == nil || bundle.Deps.SymbolIndex == nil {
		t.Fatal("expected every bundled service to be non-nil")
	}
}

func TestOpenMissingProjectFails(t *testing.T) {
	mgr := newManager(t)
	if _, err := mgr.Open(context.Background(), 1, "does-not-exist", ""); err == nil {
		t.Fatal("expected an error loading a nonexistent project")
	}
}

func TestSymbolIndexRebuiltFromDisk(t *testing.T) {
	mgr := newManager(t)
	if err := mgr.NewProject(7)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}

	bundle, err := mgr.Open(context.Background(), 7, "widget", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := bundle.Deps.Workspace.WriteFile("a.py", "def foo():\n    pass\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	bundle.Close()

	bundle2, err := mgr.Open(context.Background(), 7, "widget", "")
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	defer bundle2.Close()

	defs := bundle2.Deps.SymbolIndex.FindDefinition("foo")
	if len(defs) != 1 {
		t.Fatalf("expected symbol index rebuilt from disk to find foo, got %v", defs)
	}
}

func TestListAndDeleteProject(t *testing.T) {
	mgr := newManager(t)
	if err := mgr.NewProject(3)("alpha"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	names, err := mgr.ListProjects(3)
	if err != nil || len(names) != 1 || names[0] != "alpha" {
		t.Fatalf("ListProjects: %v %v", names, err)
	}

	if err := mgr.DeleteProject(3, "alpha"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	names, err = mgr.ListProjects(3)
	if err != nil || len(names) != 0 {
		t.Fatalf("expected no projects after delete, got %v %v", names, err)
	}
}

func TestDeleteProjectRefusedWhileMissionActive(t *testing.T) {
	mgr := newManager(t)
	if err := mgr.NewProject(9)("busy"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	mgr.control.Start(9)
	defer mgr.control.Finish(9)

	if err := mgr.DeleteProject(9, "busy"); err == nil {
		t.Fatal("expected delete to be refused while a mission is active")
	}
}
