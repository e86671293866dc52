// Package planning implements the Planning Assembly Line: the
// Architect/Auditor/Sequencer pipeline that turns a free-form user goal
// into a validated, ordered mission log.
package planning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/missionlog"
	"github.com/forgecode/agentcore/internal/tracing"
	"github.com/forgecode/agentcore/pkg/models"
)

// Blueprint is the Architect's structured description of the project to
// build, carried through the Auditor unchanged.
type Blueprint struct {
	Summary      string   `json:"summary"`
	Components   []string `json:"components"`
	Dependencies []string `json:"dependencies"`
}

type architectOutput struct {
	DraftBlueprint Blueprint `json:"draft_blueprint"`
	Critique       string    `json:"critique"`
	FinalBlueprint Blueprint `json:"final_blueprint"`
}

type auditorOutput struct {
	AuditPassed bool `json:"audit_passed"`
}

type sequencerOutput struct {
	FinalPlan []string `json:"final_plan"`
}

// Streamer is the subset of the LLM Streamer that planning needs.
type Streamer interface {
	Stream(ctx context.Context, req llmstreamer.Request) (string, error)
}

// Line runs the three-stage assembly line for one project's mission log.
type Line struct {
	streamer Streamer
	hub      *broadcast.Hub
	tracer   *tracing.Tracer
}

// New builds a Planning Assembly Line backed by an LLM Streamer. tr may
// be nil.
func New(streamer Streamer, hub *broadcast.Hub, tr *tracing.Tracer) *Line {
	return &Line{streamer: streamer, hub: hub, tracer: tr}
}

// ErrAuditRejected is returned when the Auditor stage fails its verdict;
// the caller must leave the mission log untouched and narrate a
// user-visible failure.
var ErrAuditRejected = fmt.Errorf("planning: blueprint rejected by audit")

// Run drives the Architect, Auditor, and Sequencer stages for goal and,
// on success, persists the resulting task list into log via
// SetInitialPlan. It returns ErrAuditRejected (wrapping no mission log
// mutation) when the Auditor rejects the blueprint.
func (l *Line) Run(ctx context.Context, userID int64, goal string, log *missionlog.Store) (models.MissionLog, error) {
	l.phase(userID, "architect")
	archCtx, archSpan := l.tracer.PlanningStage(ctx, "architect", userID)
	blueprint, err := l.architect(archCtx, userID, goal)
	archSpan.End()
	if err != nil {
		return models.MissionLog{}, err
	}

	l.phase(userID, "auditor")
	auditCtx, auditSpan := l.tracer.PlanningStage(ctx, "auditor", userID)
	passed, err := l.auditor(auditCtx, userID, goal, blueprint)
	auditSpan.End()
	if err != nil {
		return models.MissionLog{}, err
	}
	if !passed {
		l.systemLog(userID, "Audit failed: the proposed plan did not match your request. Try rephrasing your goal.")
		return models.MissionLog{}, ErrAuditRejected
	}

	l.phase(userID, "sequencer")
	seqCtx, seqSpan := l.tracer.PlanningStage(ctx, "sequencer", userID)
	steps, err := l.sequencer(seqCtx, userID, blueprint)
	seqSpan.End()
	if err != nil {
		return models.MissionLog{}, err
	}

	full := assemble(blueprint, steps)
	result, err := log.SetInitialPlan(goal, full)
	if err != nil {
		return models.MissionLog{}, err
	}
	if l.hub != nil {
		l.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(result.Tasks)}, userID)
	}
	return result, nil
}

// assemble prepends the synthetic dependency-installation step the
// Sequencer is forbidden from generating itself.
func assemble(blueprint Blueprint, steps []string) []string {
	if len(blueprint.Dependencies) == 0 {
		return steps
	}
	first := "Add the following dependencies to requirements.txt: "
	for i, dep := range blueprint.Dependencies {
		if i > 0 {
			first += ", "
		}
		first += dep
	}
	return append([]string{first}, steps...)
}

func (l *Line) architect(ctx context.Context, userID int64, goal string) (Blueprint, error) {
	prompt := architectPrompt(goal)
	reply, err := l.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   userID,
		Role:     models.RolePlanner,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Blueprint{}, err
	}
	var out architectOutput
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return Blueprint{}, apperrors.LLM("architect stage returned malformed JSON", err)
	}
	return out.FinalBlueprint, nil
}

func (l *Line) auditor(ctx context.Context, userID int64, goal string, blueprint Blueprint) (bool, error) {
	prompt := auditorPrompt(goal, blueprint)
	reply, err := l.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   userID,
		Role:     models.RolePlanner,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return false, err
	}
	var out auditorOutput
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return false, apperrors.LLM("auditor stage returned malformed JSON", err)
	}
	return out.AuditPassed, nil
}

func (l *Line) sequencer(ctx context.Context, userID int64, blueprint Blueprint) ([]string, error) {
	prompt := sequencerPrompt(blueprint)
	reply, err := l.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   userID,
		Role:     models.RolePlanner,
		IsJSON:   true,
		Messages: []llmstreamer.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	var out sequencerOutput
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return nil, apperrors.LLM("sequencer stage returned malformed JSON", err)
	}
	return out.FinalPlan, nil
}

func architectPrompt(goal string) string {
	return "You are the Architect. Given the user's goal, draft a blueprint, critique it " +
		"yourself, then revise it into a final blueprint. Respond as JSON " +
		`{"draft_blueprint":{...},"critique":"...","final_blueprint":{"summary":"...",` +
		`"components":["..."],"dependencies":["..."]}}.\n\nGoal: ` + goal
}

func auditorPrompt(goal string, blueprint Blueprint) string {
	raw, _ := json.Marshal(blueprint)
	return "You are the Auditor. Verify the blueprint matches the user's goal on three axes: " +
		"topic correctness, dependency correctness, and architecture correctness. " +
		`Respond as JSON {"audit_passed": true|false}.` +
		"\n\nGoal: " + goal + "\nBlueprint: " + string(raw)
}

func sequencerPrompt(blueprint Blueprint) string {
	raw, _ := json.Marshal(blueprint)
	return "You are the Sequencer. Turn the blueprint into an ordered list of imperative steps: " +
		"create directories, then create empty files, then implement files. Never include a " +
		`dependency-installation step. Respond as JSON {"final_plan": ["..."]}.` +
		"\n\nBlueprint: " + string(raw)
}

func (l *Line) phase(userID int64, name string) {
	if l.hub != nil {
		l.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypePhase, Content: name}, userID)
	}
}

func (l *Line) systemLog(userID int64, msg string) {
	if l.hub != nil {
		l.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeSystemLog, Content: msg}, userID)
	}
}
