package tools

import (
	"context"
	"strings"
	"testing"
)

func TestListFilesTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "a.py", "pass\n")
	mustWrite(t, deps, "pkg/b.py", "pass\n")

	res := assertOK(t, ListFilesTool{}.Execute(context.Background(), deps, nil))
	if !strings.Contains(res.Content, "a.py") || !strings.Contains(res.Content, "pkg/b.py") {
		t.Fatalf("expected both files listed, got %q", res.Content)
	}
}

func TestGetDependenciesTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "requirements.txt", "flask==3.0.0\n\nrequests\n")

	res := assertOK(t, GetDependenciesTool{}.Execute(context.Background(), deps, nil))
	if res.Content != "flask==3.0.0\nrequests" {
		t.Fatalf("unexpected parsed dependencies: %q", res.Content)
	}
}

func TestGetDependenciesToolMissingFile(t *testing.T) {
	deps := newTestDeps(t)
	res := assertOK(t, GetDependenciesTool{}.Execute(context.Background(), deps, nil))
	if res.Content != "" {
		t.Fatalf("expected empty result when requirements.txt is absent, got %q", res.Content)
	}
}

func TestFindDefinitionTool(t *testing.T) {
	deps := newTestDeps(t)
	if err := deps.SymbolIndex.UpdateFile(context.Background(), "m.py", []byte(sampleModule)); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	res := assertOK(t, FindDefinitionTool{}.Execute(context.Background(), deps, map[string]any{"name": "greet"}))
	if !strings.Contains(res.Content, "greet") {
		t.Fatalf("expected greet definition reported, got %q", res.Content)
	}
}

func TestFindDefinitionToolNoneFound(t *testing.T) {
	deps := newTestDeps(t)
	res := assertOK(t, FindDefinitionTool{}.Execute(context.Background(), deps, map[string]any{"name": "nope"}))
	if res.Content != "No definitions found." {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestFindReferencesTool(t *testing.T) {
	deps := newTestDeps(t)
	src := "def helper():\n    return 1\n\ndef caller():\n    return helper()\n"
	if err := deps.SymbolIndex.UpdateFile(context.Background(), "m.py", []byte(src)); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	res := assertOK(t, FindReferencesTool{}.Execute(context.Background(), deps, map[string]any{"name": "helper"}))
	if !strings.Contains(res.Content, "caller") {
		t.Fatalf("expected caller reported as a reference, got %q", res.Content)
	}
}

func TestListFunctionsInFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "m.py", sampleModule)

	res := assertOK(t, ListFunctionsInFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "m.py"}))
	if !strings.Contains(res.Content, "Greeter (class)") || !strings.Contains(res.Content, "standalone (function)") {
		t.Fatalf("expected top-level class and function listed, got %q", res.Content)
	}
}

func TestGetCodeForTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "m.py", sampleModule)

	res := assertOK(t, GetCodeForTool{}.Execute(context.Background(), deps, map[string]any{"path": "m.py", "name": "standalone"}))
	if !strings.Contains(res.Content, "def standalone():") {
		t.Fatalf("expected source of standalone returned, got %q", res.Content)
	}
}

func TestGetCodeForToolNotFound(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "m.py", sampleModule)
	assertFail(t, GetCodeForTool{}.Execute(context.Background(), deps, map[string]any{"path": "m.py", "name": "nope"}))
}

func TestLintFileTool(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "m.py", sampleModule)

	res := assertOK(t, LintFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "m.py"}))
	if !strings.Contains(res.Content, "parses cleanly") {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestLintFileToolEmptyFile(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "empty.py", "")

	res := assertOK(t, LintFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "empty.py"}))
	if !strings.Contains(res.Content, "empty; nothing to lint") {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestLintFileToolSyntaxError(t *testing.T) {
	deps := newTestDeps(t)
	mustWrite(t, deps, "broken.py", "def broken(:\n    pass\n")

	assertFail(t, LintFileTool{}.Execute(context.Background(), deps, map[string]any{"path": "broken.py"}))
}
