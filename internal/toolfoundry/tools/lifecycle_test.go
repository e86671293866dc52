package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendToFileToolCreatesWhenMissing(t *testing.T) {
	deps := newTestDeps(t)
	tool := AppendToFileTool{Reindex: defaultReindex}

	assertOK(t, tool.Execute(context.Background(), deps, map[string]any{"path": "log.txt", "content": "first\n"}))
	assertOK(t, tool.Execute(context.Background(), deps, map[string]any{"path": "log.txt", "content": "second\n"}))

	got, err := deps.Workspace.ReadFile("log.txt")
	if err != nil || got != "first\nsecond\n" {
		t.Fatalf("ReadFile: %q, %v", got, err)
	}
}

func TestCreateDirectoryTool(t *testing.T) {
	deps := newTestDeps(t)
	assertOK(t, CreateDirectoryTool{}.Execute(context.Background(), deps, map[string]any{"path": "a/b/c"}))

	abs, err := deps.Workspace.Resolve("a/b/c")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory a/b/c to exist: %v", err)
	}
}

func TestCreatePackageInitTool(t *testing.T) {
	deps := newTestDeps(t)
	assertOK(t, CreatePackageInitTool{}.Execute(context.Background(), deps, map[string]any{"path": "pkg"}))

	got, err := deps.Workspace.ReadFile("pkg/__init__.py")
	if err != nil || got != "" {
		t.Fatalf("expected empty __init__.py, got %q, %v", got, err)
	}
}

func TestDeleteDirectoryTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "doomed/file.py", "pass\n")

	assertOK(t, DeleteDirectoryTool{}.Execute(context.Background(), deps, map[string]any{"path": "doomed"}))

	abs, _ := deps.Workspace.Resolve("doomed")
	if _, err := os.Stat(abs); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected doomed/ to be gone, stat err = %v", err)
	}
}

func TestCopyFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "src.py", "x = 1\n")

	assertOK(t, CopyFileTool{}.Execute(context.Background(), deps, map[string]any{
		"source_path":      "src.py",
		"destination_path": "nested/dst.py",
	}))

	got, err := deps.Workspace.ReadFile("nested/dst.py")
	if err != nil || got != "x = 1\n" {
		t.Fatalf("ReadFile(dst): %q, %v", got, err)
	}
	if _, err := deps.Workspace.ReadFile("src.py"); err != nil {
		t.Fatalf("expected source to remain after copy: %v", err)
	}
}

func TestCopyFileToolMissingSource(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, CopyFileTool{}.Execute(context.Background(), deps, map[string]any{
		"source_path":      "nope.py",
		"destination_path": "dst.py",
	}))
}

func TestMoveFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "src.py", "x = 1\n")

	assertOK(t, MoveFileTool{}.Execute(context.Background(), deps, map[string]any{
		"source_path":      "src.py",
		"destination_path": "renamed.py",
	}))

	if _, err := deps.Workspace.ReadFile("src.py"); err == nil {
		t.Fatal("expected source to be gone after move")
	}
	got, err := deps.Workspace.ReadFile("renamed.py")
	if err != nil || got != "x = 1\n" {
		t.Fatalf("ReadFile(renamed): %q, %v", got, err)
	}
}

func TestCreateProjectTool(t *testing.T) {
	deps := newTestDeps(t)
	deps.UserID = 55

	var gotUserID int64
	var gotName string
	tool := CreateProjectTool{NewProject: func(userID int64, name string) error {
		gotUserID, gotName = userID, name
		return nil
	}}

	assertOK(t, tool.Execute(context.Background(), deps, map[string]any{"name": "widget"}))
	if gotUserID != 55 || gotName != "widget" {
		t.Fatalf("expected NewProject(55, widget), got (%d, %s)", gotUserID, gotName)
	}
}

func TestCreateProjectToolUnavailable(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, CreateProjectTool{}.Execute(context.Background(), deps, map[string]any{"name": "widget"}))
}

func TestCreateProjectToolPropagatesError(t *testing.T) {
	deps := newTestDeps(t)
	tool := CreateProjectTool{NewProject: func(int64, string) error { return errors.New("boom") }}
	assertFail(t, tool.Execute(context.Background(), deps, map[string]any{"name": "widget"}))
}

func TestCopyFileCreatesDestinationDirectory(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "a.py", "pass\n")
	abs, _ := deps.Workspace.Resolve("a.py")
	dst := filepath.Join(filepath.Dir(abs), "nested", "deep", "b.py")
	if err := copyFile(abs, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected copied file to exist: %v", err)
	}
}
