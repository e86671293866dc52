// Package toolfoundry is the registry and invocation pipeline for every
// tool the Conductor can call on the LLM's behalf: schema validation,
// sandboxed path resolution, dependency injection of per-request
// services, and success/failure classification of the result.
package toolfoundry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/metrics"
	"github.com/forgecode/agentcore/internal/missionlog"
	"github.com/forgecode/agentcore/internal/project"
	"github.com/forgecode/agentcore/internal/symbolindex"
	"github.com/forgecode/agentcore/internal/vectorindex"
	"github.com/forgecode/agentcore/pkg/models"
)

// pathParamKeys are the fixed set of argument names resolved through the
// Path Sandbox before a tool ever sees them.
var pathParamKeys = map[string]struct{}{
	"path":              {},
	"source_path":       {},
	"destination_path":  {},
	"requirements_path": {},
}

// Tool is one entry in the Foundry. Name, Description and Schema are
// static; Execute receives the per-request Deps bundle (the Go
// translation of the original's dependency-injection-by-parameter-name:
// Go cannot introspect a function's formal parameter names at runtime,
// so every tool instead receives the full service bundle and reads the
// named fields it needs) plus the LLM-supplied, sandbox-resolved
// arguments.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, deps *Deps, args map[string]any) (*models.ToolResult, error)
}

// Deps is the request-scoped service bundle threaded into every tool
// invocation: the Tool Runner's stand-in for the original's
// inspect.signature-driven dependency injection.
type Deps struct {
	UserID        int64
	CurrentTaskID int
	UserIdea      string
	ClientID      string

	Workspace   *project.Workspace
	MissionLog  *missionlog.Store
	VectorIndex *vectorindex.Index
	SymbolIndex *symbolindex.Index
	Hub         *broadcast.Hub
	Control     *control.Registry
	Metrics     *metrics.Metrics
}

// Registry holds every registered Tool, indexed by name, plus its
// compiled JSON-Schema validator.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

type registered struct {
	tool      Tool
	validator *jsonschema.Schema
}

// NewRegistry creates an empty Tool Foundry registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register compiles a tool's schema and adds it to the registry. It
// panics on a malformed schema, since that is a startup-time programming
// error, not a runtime condition.
func (r *Registry) Register(t Tool) {
	compiler := jsonschema.NewCompiler()
	schemaURL := "inline:///" + t.Name() + ".json"
	if err := compiler.AddResource(schemaURL, strings.NewReader(string(t.Schema()))); err != nil {
		panic(fmt.Sprintf("toolfoundry: invalid schema for %s: %v", t.Name(), err))
	}
	validator, err := compiler.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("toolfoundry: compile schema for %s: %v", t.Name(), err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = registered{tool: t, validator: validator}
}

// List returns every registered tool, for exposing the Foundry's
// catalogue to the LLM.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.tool)
	}
	return out
}

// Invoke runs the full pipeline: lookup, schema validation, sandboxed
// path resolution, execution, and success/failure classification with
// the filesystem-mutation broadcasts the design requires.
func (r *Registry) Invoke(ctx context.Context, deps *Deps, call models.Invocation) (*models.ToolResult, error) {
	r.mu.RLock()
	reg, ok := r.tools[call.ToolName]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.Validation("unknown tool: "+call.ToolName, nil)
	}

	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, apperrors.ToolExecution("marshal tool arguments", err)
	}
	var asAny any
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil, apperrors.ToolExecution("unmarshal tool arguments", err)
	}
	if err := reg.validator.Validate(asAny); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("arguments for %s failed schema validation", call.ToolName), err)
	}

	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		args[k] = v
	}
	for key := range pathParamKeys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		// Resolution only validates the path stays inside the sandbox;
		// tools keep working with the project-relative form.
		if _, err := deps.Workspace.Resolve(str); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := reg.tool.Execute(ctx, deps, args)
	duration := time.Since(start).Seconds()
	if err != nil {
		deps.Metrics.RecordToolExecution(call.ToolName, "error", duration)
		return nil, err
	}
	if result == nil {
		result = &models.ToolResult{}
	}
	if isFailureResult(result.Content) {
		result.IsError = true
	}
	status := "success"
	if result.IsError {
		status = "error"
	}
	deps.Metrics.RecordToolExecution(call.ToolName, status, duration)

	if !result.IsError && isFilesystemMutating(call.ToolName) {
		r.broadcastFileTreeUpdate(ctx, deps)
		if call.ToolName == "write_file" {
			r.broadcastFileContentUpdate(deps, args)
		}
	}
	return result, nil
}

// isFailureResult implements the classification rule: a string result
// beginning (case-insensitively) with "Error" or containing "failed"
// marks the invocation as a failure.
func isFailureResult(content string) bool {
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "error") || strings.Contains(lower, "failed")
}

var filesystemMutatingTools = map[string]struct{}{
	"write_file":                     {},
	"append_to_file":                 {},
	"delete_file":                    {},
	"create_directory":               {},
	"create_package_init":            {},
	"delete_directory":               {},
	"copy_file":                      {},
	"move_file":                      {},
	"add_class_to_file":              {},
	"add_function_to_file":           {},
	"add_method_to_class":            {},
	"add_parameter_to_function":      {},
	"add_decorator_to_function":      {},
	"append_to_function":             {},
	"replace_node_in_file":           {},
	"replace_method_in_class":        {},
	"rename_symbol_in_file":          {},
	"rename_symbol":                  {},
	"add_import":                     {},
	"add_attribute_to_init":          {},
	"add_dependency_to_requirements": {},
}

func isFilesystemMutating(toolName string) bool {
	_, ok := filesystemMutatingTools[toolName]
	return ok
}

func (r *Registry) broadcastFileTreeUpdate(_ context.Context, deps *Deps) {
	if deps.Hub == nil || deps.Workspace == nil {
		return
	}
	tree, err := deps.Workspace.GetFileTree()
	if err != nil {
		return
	}
	deps.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeFileTreeUpdated, Payload: tree}, deps.UserID)
}

func (r *Registry) broadcastFileContentUpdate(deps *Deps, args map[string]any) {
	if deps.Hub == nil || deps.Workspace == nil {
		return
	}
	path, _ := args["path"].(string)
	if path == "" {
		return
	}
	content, err := deps.Workspace.ReadFile(path)
	if err != nil {
		return
	}
	deps.Hub.BroadcastToUser(broadcast.Message{
		Type:    broadcast.TypeFileContentUpdated,
		Payload: map[string]string{"filePath": path, "content": content},
	}, deps.UserID)
}
