// Package conductor implements the Mission Conductor: the state machine
// that drives an approved mission log to completion one task at a time,
// retrying, re-planning, and finally polishing the result.
package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/metrics"
	"github.com/forgecode/agentcore/internal/pytree"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/tracing"
	"github.com/forgecode/agentcore/pkg/models"
)

// maxRetriesPerTask is the number of retries after the first attempt:
// two attempts total per task before a strategic re-plan.
const maxRetriesPerTask = 1

const relevantSnippetCount = 5

// filePathToken matches the file-path-like substrings the Context
// Bundle extracts from a task description.
var filePathToken = regexp.MustCompile(`[A-Za-z0-9_./-]+\.[A-Za-z0-9]+`)

// Streamer is the subset of the LLM Streamer the Conductor needs.
type Streamer interface {
	Stream(ctx context.Context, req llmstreamer.Request) (string, error)
}

// Conductor drives a single user's mission to completion.
type Conductor struct {
	streamer Streamer
	tools    *toolfoundry.Registry
	hub      *broadcast.Hub
	control  *control.Registry
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
}

// New builds a Conductor wired to its collaborators. m and tr may both
// be nil.
func New(streamer Streamer, tools *toolfoundry.Registry, hub *broadcast.Hub, ctrl *control.Registry, m *metrics.Metrics, tr *tracing.Tracer) *Conductor {
	return &Conductor{streamer: streamer, tools: tools, hub: hub, control: ctrl, metrics: m, tracer: tr}
}

// GenerateFile satisfies tools.GenerateFunc: it streams a coder-role
// completion for path, narrating each chunk as code_stream_chunk, and
// returns the full generated body for WriteFileTool to validate and
// commit.
func (c *Conductor) GenerateFile(ctx context.Context, deps *toolfoundry.Deps, path, taskDescription string) (string, error) {
	prompt := fmt.Sprintf("Write the complete contents of %s.\n\n%s", path, taskDescription)
	return c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   deps.UserID,
		Role:     models.RoleCoder,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
		StreamAs: broadcast.TypeCodeStreamChunk,
		FilePath: path,
	})
}

// Run drives deps' mission to completion: it loops over pending tasks
// until the log is exhausted (running the Polish Pass and declaring
// success), a stop is requested, or an unrecoverable LLM failure halts
// the mission. A panic inside the loop is recovered into a Fatal error
// and broadcast as mission_failure.
func (c *Conductor) Run(ctx context.Context, deps *toolfoundry.Deps) (err error) {
	c.control.Start(deps.UserID)
	defer c.control.Finish(deps.UserID)

	c.metrics.MissionStarted()
	defer func() {
		outcome := "success"
		switch {
		case err == nil:
			outcome = "success"
		case apperrors.KindOf(err) == apperrors.KindCancelled:
			outcome = "cancelled"
		default:
			outcome = "failure"
		}
		c.metrics.MissionCompleted(outcome)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Fatal(fmt.Sprintf("conductor panic: %v", r), nil)
			c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionFailure, Content: err.Error()}, deps.UserID)
		}
	}()

	before, _ := deps.Workspace.AllFiles()
	retries := make(map[int]int)

	for {
		if !c.control.ShouldContinue(deps.UserID) {
			c.systemLog(deps.UserID, "Mission halted by stop request.")
			return apperrors.Cancelled("mission stopped")
		}

		snap := deps.MissionLog.Snapshot()
		task, found := firstPending(snap)
		if !found {
			return c.finish(ctx, deps, snap, before)
		}

		deps.CurrentTaskID = task.ID
		c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeActiveTaskUpdated, Payload: broadcast.TaskPayload(task.ID)}, deps.UserID)

		tickCtx, span := c.tracer.ConductorTick(ctx, deps.UserID, task.ID)
		result, execErr := c.executeTask(tickCtx, deps, snap, task)
		span.End()
		if execErr != nil {
			if apperrors.KindOf(execErr) == apperrors.KindCancelled {
				return execErr
			}
			c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionFailure, Content: execErr.Error()}, deps.UserID)
			return execErr
		}

		if result.IsError {
			c.metrics.TaskAttempt("failure")
			_ = deps.MissionLog.UpdateTask(task.ID, "", nil, result.Content)
			retries[task.ID]++
			if retries[task.ID] <= maxRetriesPerTask {
				c.systemLog(deps.UserID, fmt.Sprintf("Task %d failed (attempt %d): %s", task.ID, retries[task.ID], result.Content))
				continue
			}
			if err := c.replan(ctx, deps, snap, task, result.Content); err != nil {
				c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionFailure, Content: err.Error()}, deps.UserID)
				return err
			}
			continue
		}

		c.metrics.TaskAttempt("success")
		if err := deps.MissionLog.MarkDone(task.ID); err != nil {
			return err
		}
		c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(deps.MissionLog.Snapshot().Tasks)}, deps.UserID)
	}
}

func firstPending(log models.MissionLog) (models.Task, bool) {
	for _, t := range log.Tasks {
		if !t.Done {
			return t, true
		}
	}
	return models.Task{}, false
}

// executeTask asks the coder model for exactly one Invocation and runs
// it through the Tool Foundry. A tool-level failure (unknown tool,
// schema rejection, sandbox violation) is folded into a failing
// ToolResult so it feeds the normal retry/re-plan path rather than
// halting the mission outright; only an LLM-level failure (malformed
// JSON, network failure) escalates to a returned error.
func (c *Conductor) executeTask(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog, task models.Task) (*models.ToolResult, error) {
	bundle := c.buildContextBundle(ctx, deps, snap, task)
	invocation, err := c.askForInvocation(ctx, deps, bundle)
	if err != nil {
		return nil, err
	}

	result, err := c.tools.Invoke(ctx, deps, invocation)
	if err != nil {
		return &models.ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}, nil
	}
	return result, nil
}

func (c *Conductor) askForInvocation(ctx context.Context, deps *toolfoundry.Deps, bundle string) (models.Invocation, error) {
	reply, err := c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   deps.UserID,
		Role:     models.RoleCoder,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: bundle}},
		Tools:    c.toolCatalog(),
	})
	if err != nil {
		return models.Invocation{}, err
	}
	var invocation models.Invocation
	if err := json.Unmarshal([]byte(reply), &invocation); err != nil {
		return models.Invocation{}, apperrors.LLM("coder stage returned malformed JSON", err)
	}
	return invocation, nil
}

func (c *Conductor) toolCatalog() []llmstreamer.ToolSpec {
	tools := c.tools.List()
	specs := make([]llmstreamer.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, llmstreamer.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return specs
}

// buildContextBundle assembles the prompt context for one task: its
// description and last error, the mission log history, the full file
// tree, the Active File Context, and the Relevant Snippets from the
// Vector Index.
func (c *Conductor) buildContextBundle(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog, task models.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	if task.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", task.LastError)
	}

	b.WriteString("\nMission log:\n")
	b.WriteString(formatMissionLog(snap))

	if tree, err := deps.Workspace.GetFileTree(); err == nil {
		if raw, err := json.Marshal(tree); err == nil {
			fmt.Fprintf(&b, "\nFile tree:\n%s\n", raw)
		}
	}

	fmt.Fprintf(&b, "\nActive file context:\n%s\n", c.activeFileContext(ctx, deps, task.Description))

	if deps.VectorIndex != nil {
		if snippets, err := deps.VectorIndex.Query(ctx, task.Description, relevantSnippetCount); err == nil && len(snippets) > 0 {
			b.WriteString("\nRelevant snippets:\n")
			for _, s := range snippets {
				fmt.Fprintf(&b, "--- %s (%s %s) ---\n%s\n", s.Chunk.FilePath, s.Chunk.NodeType, s.Chunk.NodeName, s.Chunk.Document)
			}
		}
	}

	b.WriteString("\nRespond with exactly one tool call as JSON: {\"tool_name\": \"...\", \"arguments\": {...}}.\n")
	return b.String()
}

func formatMissionLog(snap models.MissionLog) string {
	var b strings.Builder
	for _, t := range snap.Tasks {
		status := "Pending"
		if t.Done {
			status = "Done"
		}
		fmt.Fprintf(&b, "- ID %d (%s): %s\n", t.ID, status, t.Description)
	}
	return b.String()
}

// activeFileContext synthesizes a capability summary for every
// file-path-like token found in the task description: import set and
// top-level function/class names for existing Python files, the first
// 1000 bytes verbatim for other existing files, and an explicit note
// for paths that do not exist yet.
func (c *Conductor) activeFileContext(ctx context.Context, deps *toolfoundry.Deps, taskDescription string) string {
	matches := filePathToken.FindAllString(taskDescription, -1)
	if len(matches) == 0 {
		return "(none)"
	}
	seen := make(map[string]struct{}, len(matches))
	var b strings.Builder
	for _, path := range matches {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		content, err := deps.Workspace.ReadFile(path)
		if err != nil {
			fmt.Fprintf(&b, "%s: will be created\n", path)
			continue
		}
		if strings.HasSuffix(path, ".py") {
			fmt.Fprintf(&b, "%s:\n%s\n", path, pythonCapabilitySummary(ctx, path, content))
			continue
		}
		snippet := content
		if len(snippet) > 1000 {
			snippet = snippet[:1000]
		}
		fmt.Fprintf(&b, "%s:\n%s\n", path, snippet)
	}
	return b.String()
}

var importLine = regexp.MustCompile(`(?m)^\s*(?:import\s+([A-Za-z0-9_.,\s]+)|from\s+([A-Za-z0-9_.]+)\s+import)`)

func pythonCapabilitySummary(ctx context.Context, path, content string) string {
	defs, err := pytree.New().Parse(ctx, []byte(content))
	if err != nil {
		return "(failed to parse)"
	}

	imports := make(map[string]struct{})
	for _, m := range importLine.FindAllStringSubmatch(content, -1) {
		switch {
		case m[1] != "":
			for _, name := range strings.Split(m[1], ",") {
				imports[strings.TrimSpace(strings.Fields(strings.TrimSpace(name))[0])] = struct{}{}
			}
		case m[2] != "":
			imports[m[2]] = struct{}{}
		}
	}

	var funcs, classes []string
	for _, d := range defs {
		if d.ParentClass != "" {
			continue
		}
		switch d.Kind {
		case "function":
			funcs = append(funcs, d.Name)
		case "class":
			classes = append(classes, d.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  imports: %s\n", joinSet(imports))
	fmt.Fprintf(&b, "  functions: %s\n", strings.Join(funcs, ", "))
	fmt.Fprintf(&b, "  classes: %s", strings.Join(classes, ", "))
	return b.String()
}

func joinSet(set map[string]struct{}) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// replan invokes the planner model with the failing task's context and
// applies its replacement steps via ReplaceTasksFromID, preserving every
// completed task before the failure point.
func (c *Conductor) replan(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog, task models.Task, lastError string) error {
	prompt := fmt.Sprintf(
		"You are re-planning after a repeated failure. Original goal: %s\n\nMission log:\n%s\nFailing task: %s\nLast error: %s\n\n"+
			"Respond as JSON {\"plan\": [\"...\"]} describing replacement steps, starting with one that "+
			"directly addresses the error.",
		snap.InitialGoal, formatMissionLog(snap), task.Description, lastError,
	)
	reply, err := c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   deps.UserID,
		Role:     models.RolePlanner,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}
	var out struct {
		Plan []string `json:"plan"`
	}
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return apperrors.LLM("re-plan stage returned malformed JSON", err)
	}

	result, err := deps.MissionLog.ReplaceTasksFromID(task.ID, out.Plan)
	if err != nil {
		return err
	}
	c.systemLog(deps.UserID, "I have a new plan. Resuming execution.")
	c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(result.Tasks)}, deps.UserID)
	return nil
}

// finish runs the Polish Pass once the mission log is exhausted, narrates
// a short mission summary, then declares success.
func (c *Conductor) finish(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog, before map[string][]byte) error {
	if err := c.polish(ctx, deps, snap, before); err != nil {
		c.systemLog(deps.UserID, fmt.Sprintf("Polish pass skipped: %v", err))
	}
	c.narrateSummary(ctx, deps, snap)
	c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionSuccess}, deps.UserID)
	return nil
}

// narrateSummary asks the planner model for a short natural-language
// recap of the mission and broadcasts it as an aura_response before the
// terminal mission_success message. A summary failure never blocks
// mission completion.
func (c *Conductor) narrateSummary(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog) {
	prompt := fmt.Sprintf(
		"Summarize in two or three sentences what this mission accomplished, for the user who requested it. "+
			"Goal: %s\n\nMission log:\n%s", snap.InitialGoal, formatMissionLog(snap))
	reply, err := c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   deps.UserID,
		Role:     models.RolePlanner,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		return
	}
	c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAuraResponse, Content: reply}, deps.UserID)
}

type polishFix struct {
	FilePath            string `json:"file_path"`
	OriginalCodeSnippet string `json:"original_code_snippet"`
	FixedCodeSnippet    string `json:"fixed_code_snippet"`
	Reason              string `json:"reason"`
}

// polish computes the cumulative diff the mission produced, and — if
// anything changed — asks the planner model to name and patch
// name/import/argument/attribute errors only.
func (c *Conductor) polish(ctx context.Context, deps *toolfoundry.Deps, snap models.MissionLog, before map[string][]byte) error {
	after, err := deps.Workspace.AllFiles()
	if err != nil {
		return err
	}
	diff := cumulativeDiff(before, after)
	if diff == "" {
		return nil
	}

	tree, _ := deps.Workspace.GetFileTree()
	treeRaw, _ := json.Marshal(tree)
	prompt := fmt.Sprintf(
		"You are a meticulous linter reviewing the result of an automated coding mission. "+
			"Goal: %s\n\nFile tree:\n%s\n\nDiff:\n%s\n\n"+
			"Find only name errors, missing imports, argument mismatches, and attribute errors. "+
			"Never propose a refactor. Respond as JSON "+
			"{\"thought\": \"...\", \"fixes\": [{\"file_path\": \"...\", \"original_code_snippet\": \"...\", "+
			"\"fixed_code_snippet\": \"...\", \"reason\": \"...\"}]}.",
		snap.InitialGoal, treeRaw, diff,
	)
	reply, err := c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   deps.UserID,
		Role:     models.RolePlanner,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}

	var out struct {
		Thought string      `json:"thought"`
		Fixes   []polishFix `json:"fixes"`
	}
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return apperrors.LLM("polish pass returned malformed JSON", err)
	}

	for _, fix := range out.Fixes {
		c.applyFix(deps, fix)
	}
	return nil
}

func (c *Conductor) applyFix(deps *toolfoundry.Deps, fix polishFix) {
	content, err := deps.Workspace.ReadFile(fix.FilePath)
	if err != nil {
		return
	}
	idx := strings.Index(content, fix.OriginalCodeSnippet)
	if idx < 0 {
		c.systemLog(deps.UserID, fmt.Sprintf("Polish pass: skipped fix for %s, snippet not found verbatim", fix.FilePath))
		return
	}
	patched := content[:idx] + fix.FixedCodeSnippet + content[idx+len(fix.OriginalCodeSnippet):]
	if err := deps.Workspace.WriteFile(fix.FilePath, patched); err != nil {
		return
	}
	c.systemLog(deps.UserID, fmt.Sprintf("Polish pass: patched %s (%s)", fix.FilePath, fix.Reason))
}

// cumulativeDiff renders a simple before/after diff across every file
// that was added, removed, or changed. It is not meant to be a minimal
// unified diff, only a faithful record of what the mission touched.
func cumulativeDiff(before, after map[string][]byte) string {
	var b strings.Builder
	for path, afterContent := range after {
		beforeContent, existed := before[path]
		if existed && string(beforeContent) == string(afterContent) {
			continue
		}
		if !existed {
			fmt.Fprintf(&b, "--- /dev/null\n+++ %s\n%s\n", path, prefixLines(string(afterContent), "+"))
			continue
		}
		fmt.Fprintf(&b, "--- %s (before)\n+++ %s (after)\n%s\n%s\n",
			path, path, prefixLines(string(beforeContent), "-"), prefixLines(string(afterContent), "+"))
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			fmt.Fprintf(&b, "--- %s\n+++ /dev/null\n%s\n", path, prefixLines(string(before[path]), "-"))
		}
	}
	return b.String()
}

func prefixLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func (c *Conductor) systemLog(userID int64, msg string) {
	c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeSystemLog, Content: msg}, userID)
}
