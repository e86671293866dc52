package tools

import (
	"context"
	"testing"

	"github.com/forgecode/agentcore/internal/toolfoundry"
)

func TestReadFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "hello.py", "print('hi')\n")

	res := assertOK(t, ReadFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "hello.py"}))
	if res.Content != "print('hi')\n" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestReadFileToolMissing(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, ReadFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "missing.py"}))
}

func TestWriteFileToolLiteralContent(t *testing.T) {
	deps := newTestDeps(t)
	var reindexedPath string
	tool := WriteFileTool{Reindex: func(_ context.Context, _ *toolfoundry.Deps, path, _ string) {
		reindexedPath = path
	}}

	assertOK(t, tool.Execute(context.Background(), deps, map[string]any{"path": "a.py", "content": "x = 1\n"}))

	got, err := deps.Workspace.ReadFile("a.py")
	if err != nil || got != "x = 1\n" {
		t.Fatalf("ReadFile: %q, %v", got, err)
	}
	if reindexedPath != "a.py" {
		t.Fatalf("expected reindex to run for a.py, got %q", reindexedPath)
	}
}

func TestWriteFileToolMissingPath(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, WriteFileTool{}.Execute(context.Background(), deps, map[string]any{"content": "x = 1"}))
}

func TestWriteFileToolGeneratesFromTaskDescription(t *testing.T) {
	deps := newTestDeps(t)
	tool := WriteFileTool{
		Generate: func(_ context.Context, _ *toolfoundry.Deps, _, taskDescription string) (string, error) {
			return "def run():\n    return \"" + taskDescription + "\"\n", nil
		},
	}

	assertOK(t, tool.Execute(context.Background(), deps, map[string]any{
		"path":             "gen.py",
		"task_description": "ping",
	}))

	got, err := deps.Workspace.ReadFile("gen.py")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "def run():\n    return \"ping\"\n" {
		t.Fatalf("unexpected generated content: %q", got)
	}
}

func TestWriteFileToolGenerateUnavailable(t *testing.T) {
	deps := newTestDeps(t)
	tool := WriteFileTool{}
	assertFail(t, tool.Execute(context.Background(), deps, map[string]any{
		"path":             "gen.py",
		"task_description": "ping",
	}))
}

func TestWriteFileToolRejectsInvalidGeneratedPython(t *testing.T) {
	deps := newTestDeps(t)
	tool := WriteFileTool{
		Generate: func(_ context.Context, _ *toolfoundry.Deps, _, _ string) (string, error) {
			return "def broken(:\n", nil
		},
	}
	assertFail(t, tool.Execute(context.Background(), deps, map[string]any{
		"path":             "broken.py",
		"task_description": "broken",
	}))
}

func TestDeleteFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "doomed.py", "pass\n")

	assertOK(t, DeleteFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "doomed.py"}))

	if _, err := deps.Workspace.ReadFile("doomed.py"); err == nil {
		t.Fatal("expected file to be gone after delete_file")
	}
}

func TestDeleteFileToolMissing(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, DeleteFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "nope.py"}))
}

func TestGetFileTreeTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "pkg/mod.py", "pass\n")

	res := assertOK(t, GetFileTreeTool{}.Execute(context.Background(), deps, nil))
	if len(res.Content) == 0 {
		t.Fatal("expected non-empty file tree JSON")
	}
}
