package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// AddDependencyToRequirementsTool idempotently appends a requirement to
// requirements.txt, de-duplicating by package-name prefix (the part
// before any version specifier), so re-running the same task twice never
// produces two conflicting pins for the same package.
type AddDependencyToRequirementsTool struct{}

type addDependencyParams struct {
	Dependency string `json:"dependency" jsonschema:"required,description=e.g. 'flask==3.0.0' or 'requests'"`
}

func (AddDependencyToRequirementsTool) Name() string { return "add_dependency_to_requirements" }
func (AddDependencyToRequirementsTool) Description() string {
	return "Adds a package to requirements.txt, skipping it if already present."
}
func (AddDependencyToRequirementsTool) Schema() json.RawMessage { return schemaFor(addDependencyParams{}) }

func (t AddDependencyToRequirementsTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	dep := strings.TrimSpace(str(args, "dependency"))
	if dep == "" {
		return fail("Error: dependency is required"), nil
	}
	name := packageName(dep)

	existing, err := deps.Workspace.ReadFile("requirements.txt")
	if err != nil {
		existing = ""
	}
	lines := splitNonEmptyLines(existing)
	for _, l := range lines {
		if packageName(l) == name {
			return ok(dep + " already present in requirements.txt"), nil
		}
	}
	lines = append(lines, dep)
	newText := strings.Join(lines, "\n") + "\n"
	if err := deps.Workspace.WriteFile("requirements.txt", newText); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok("Added " + dep + " to requirements.txt"), nil
}

func packageName(requirement string) string {
	r := strings.TrimSpace(requirement)
	for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", "["} {
		if idx := strings.Index(r, sep); idx >= 0 {
			r = r[:idx]
		}
	}
	return strings.ToLower(strings.TrimSpace(r))
}

func splitNonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}
