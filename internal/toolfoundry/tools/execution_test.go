package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunShellCommandTool(t *testing.T) {
	deps := newTestDeps(t)

	res := assertOK(t, RunShellCommandTool{}.Execute(context.Background(), deps, map[string]any{"command": "echo hello"}))
	if !strings.Contains(res.Content, "hello") {
		t.Fatalf("expected command output, got %q", res.Content)
	}
}

func TestRunShellCommandToolNonZeroExit(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, RunShellCommandTool{}.Execute(context.Background(), deps, map[string]any{"command": "exit 3"}))
}

func TestRunShellCommandToolRequiresCommand(t *testing.T) {
	deps := newTestDeps(t)
	assertFail(t, RunShellCommandTool{}.Execute(context.Background(), deps, map[string]any{"command": "  "}))
}

func writeStubExecutable(t *testing.T, root, name, script string) {
	t.Helper()
	dir := filepath.Join(root, ".venv", "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile stub %s: %v", name, err)
	}
}

func TestRunTestsToolUsesProjectVenvAndReportsPass(t *testing.T) {
	deps := newTestDeps(t)
	root := deps.Workspace.Root()
	writeStubExecutable(t, root, "pytest", "echo ran; exit 0")

	res := assertOK(t, RunTestsTool{}.Execute(context.Background(), deps, nil))
	if !strings.Contains(res.Content, "ran") {
		t.Fatalf("expected stub pytest output, got %q", res.Content)
	}
}

func TestRunTestsToolNoTestsCollected(t *testing.T) {
	deps := newTestDeps(t)
	root := deps.Workspace.Root()
	writeStubExecutable(t, root, "pytest", "exit 5")

	res := assertOK(t, RunTestsTool{}.Execute(context.Background(), deps, nil))
	if res.Content != "No tests collected." {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestRunTestsToolFailure(t *testing.T) {
	deps := newTestDeps(t)
	root := deps.Workspace.Root()
	writeStubExecutable(t, root, "pytest", "echo boom 1>&2; exit 1")

	assertFail(t, RunTestsTool{}.Execute(context.Background(), deps, nil))
}

func TestPipInstallToolUsesProjectVenv(t *testing.T) {
	deps := newTestDeps(t)
	root := deps.Workspace.Root()
	writeStubExecutable(t, root, "pip", "echo installed \"$@\"; exit 0")
	mustWrite(t, deps, "requirements.txt", "requests\n")

	res := assertOK(t, PipInstallTool{}.Execute(context.Background(), deps, nil))
	if !strings.Contains(res.Content, "installed") {
		t.Fatalf("expected stub pip output, got %q", res.Content)
	}
}

func TestVenvExecutableFallsBackWithoutVenv(t *testing.T) {
	root := t.TempDir()
	if got := venvExecutable(root, "python"); got != "python" {
		t.Fatalf("expected fallback to bare name, got %q", got)
	}
}

func TestRewriteLeadingExecutableOnlyRewritesKnownTokens(t *testing.T) {
	root := t.TempDir()
	writeStubExecutable(t, root, "python", "exit 0")

	rewritten := rewriteLeadingExecutable(root, "python script.py --flag")
	if !strings.HasSuffix(rewritten, "script.py --flag") || !strings.Contains(rewritten, ".venv") {
		t.Fatalf("expected python rewritten to venv path, got %q", rewritten)
	}

	unrewritten := rewriteLeadingExecutable(root, "ls -la")
	if unrewritten != "ls -la" {
		t.Fatalf("expected unrelated command untouched, got %q", unrewritten)
	}
}
