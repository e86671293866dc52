package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

const shellCommandTimeout = 2 * time.Minute

// venvExecutable rewrites a leading python/pip token to the project-local
// virtual-environment executable when one exists at
// <project>/.venv/bin/<name>, per §4.8's venv-aware run_shell_command.
func venvExecutable(projectRoot, name string) string {
	candidate := filepath.Join(projectRoot, ".venv", "bin", name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return name
}

func rewriteLeadingExecutable(projectRoot, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	switch fields[0] {
	case "python", "python3", "pip", "pip3":
		fields[0] = venvExecutable(projectRoot, fields[0])
		return strings.Join(fields, " ")
	default:
		return command
	}
}

func runShell(ctx context.Context, workDir, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = workDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	exitCode = cmd.ProcessState.ExitCode()
	return outBuf.String(), errBuf.String(), exitCode, runErr
}

// RunShellCommandTool executes a short-lived shell command at the
// project root, rewriting a leading python/pip invocation to the
// project's virtual environment when present.
type RunShellCommandTool struct{}

type runShellCommandParams struct {
	Command string `json:"command" jsonschema:"required"`
}

func (RunShellCommandTool) Name() string        { return "run_shell_command" }
func (RunShellCommandTool) Description() string { return "Runs a short-lived shell command in the project root." }
func (RunShellCommandTool) Schema() json.RawMessage { return schemaFor(runShellCommandParams{}) }

func (RunShellCommandTool) Execute(ctx context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	command := strings.TrimSpace(str(args, "command"))
	if command == "" {
		return fail("Error: command is required"), nil
	}
	root := deps.Workspace.Root()
	rewritten := rewriteLeadingExecutable(root, command)

	stdout, stderr, exitCode, err := runShell(ctx, root, rewritten, shellCommandTimeout)
	if err != nil && exitCode == 0 {
		return fail(fmt.Sprintf("Error: failed to run command: %v", err)), nil
	}
	output := combineOutput(stdout, stderr)
	if exitCode != 0 {
		return fail(fmt.Sprintf("Error: command exited with status %d: %s", exitCode, output)), nil
	}
	return ok(output), nil
}

func combineOutput(stdout, stderr string) string {
	var b strings.Builder
	b.WriteString(stdout)
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(stderr)
	}
	return b.String()
}

// RunTestsTool invokes the project's test runner inside the project
// virtual environment. Exit code 0 = pass, 5 = no tests collected
// (pytest's convention), anything else = fail.
type RunTestsTool struct{}

func (RunTestsTool) Name() string        { return "run_tests" }
func (RunTestsTool) Description() string { return "Runs the project's test suite." }
func (RunTestsTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (RunTestsTool) Execute(ctx context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	root := deps.Workspace.Root()
	pytest := venvExecutable(root, "pytest")
	stdout, stderr, exitCode, err := runShell(ctx, root, pytest, shellCommandTimeout)
	if err != nil && exitCode == 0 {
		return fail(fmt.Sprintf("Error: failed to run tests: %v", err)), nil
	}
	output := combineOutput(stdout, stderr)
	switch exitCode {
	case 0:
		return ok(output), nil
	case 5:
		return ok("No tests collected."), nil
	default:
		return fail(fmt.Sprintf("Error: tests failed (exit %d): %s", exitCode, output)), nil
	}
}

// PipInstallTool installs the project's requirements.txt into the
// project's virtual environment.
type PipInstallTool struct{}

func (PipInstallTool) Name() string        { return "pip_install" }
func (PipInstallTool) Description() string { return "Installs requirements.txt into the project's virtual environment." }
func (PipInstallTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (PipInstallTool) Execute(ctx context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	root := deps.Workspace.Root()
	pip := venvExecutable(root, "pip")
	command := fmt.Sprintf("%s install -r requirements.txt", pip)
	stdout, stderr, exitCode, err := runShell(ctx, root, command, shellCommandTimeout)
	if err != nil && exitCode == 0 {
		return fail(fmt.Sprintf("Error: failed to install dependencies: %v", err)), nil
	}
	output := combineOutput(stdout, stderr)
	if exitCode != 0 {
		return fail(fmt.Sprintf("Error: pip install failed (exit %d): %s", exitCode, output)), nil
	}
	return ok(output), nil
}
