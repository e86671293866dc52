package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/pkg/models"
)

// GetMissionLogTool reports the current task list as the coder model
// sees it in the Context Bundle, exposed directly as a callable tool so
// the LLM can re-check status mid-task.
type GetMissionLogTool struct{}

func (GetMissionLogTool) Name() string        { return "get_mission_log" }
func (GetMissionLogTool) Description() string { return "Returns the project's current mission log: every task, its status, and any last error." }
func (GetMissionLogTool) Schema() json.RawMessage { return schemaFor(struct{}{}) }

func (GetMissionLogTool) Execute(_ context.Context, deps *toolfoundry.Deps, _ map[string]any) (*models.ToolResult, error) {
	if deps.MissionLog == nil {
		return fail("Error: mission log unavailable"), nil
	}
	snap := deps.MissionLog.Snapshot()
	var b strings.Builder
	for _, task := range snap.Tasks {
		status := "Pending"
		if task.Done {
			status = "Done"
		}
		fmt.Fprintf(&b, "- ID %d (%s): %s", task.ID, status, task.Description)
		if task.LastError != "" {
			fmt.Fprintf(&b, " [last error: %s]", task.LastError)
		}
		b.WriteByte('\n')
	}
	return ok(strings.TrimRight(b.String(), "\n")), nil
}

// AddTaskToMissionLogTool lets the coder model split a task mid-flight by
// appending a new one to the mission log.
type AddTaskToMissionLogTool struct{}

type addTaskParams struct {
	Description string `json:"description" jsonschema:"required"`
}

func (AddTaskToMissionLogTool) Name() string        { return "add_task_to_mission_log" }
func (AddTaskToMissionLogTool) Description() string { return "Appends a new task to the project's mission log." }
func (AddTaskToMissionLogTool) Schema() json.RawMessage { return schemaFor(addTaskParams{}) }

func (AddTaskToMissionLogTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	if deps.MissionLog == nil {
		return fail("Error: mission log unavailable"), nil
	}
	desc := strings.TrimSpace(str(args, "description"))
	if desc == "" {
		return fail("Error: description is required"), nil
	}
	id, err := deps.MissionLog.AddTask(desc)
	if err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Added task %d: %s", id, desc)), nil
}

// MarkTaskAsDoneTool lets the coder model mark a task complete directly,
// used when one tool call satisfies more than one mission-log entry.
type MarkTaskAsDoneTool struct{}

type markTaskDoneParams struct {
	TaskID int `json:"task_id" jsonschema:"required"`
}

func (MarkTaskAsDoneTool) Name() string        { return "mark_task_as_done" }
func (MarkTaskAsDoneTool) Description() string { return "Marks a mission log task as done by ID." }
func (MarkTaskAsDoneTool) Schema() json.RawMessage { return schemaFor(markTaskDoneParams{}) }

func (MarkTaskAsDoneTool) Execute(_ context.Context, deps *toolfoundry.Deps, args map[string]any) (*models.ToolResult, error) {
	if deps.MissionLog == nil {
		return fail("Error: mission log unavailable"), nil
	}
	id, _ := args["task_id"].(float64)
	if id == 0 {
		return fail("Error: task_id is required"), nil
	}
	if err := deps.MissionLog.MarkDone(int(id)); err != nil {
		return fail(fmt.Sprintf("Error: %v", err)), nil
	}
	return ok(fmt.Sprintf("Marked task %d done", int(id))), nil
}
