package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/pkg/models"
)

// intentPlan and intentChat are the only two values the IntentDetector
// is allowed to return.
const (
	intentPlan = "PLAN"
	intentChat = "CHAT"
)

type intentOutput struct {
	Intent string `json:"intent"`
}

// classifyIntent asks the planner role, in JSON mode, whether prompt is
// a project-change request (PLAN) or a conversational message (CHAT).
// Any reply outside {PLAN, CHAT} is rejected rather than guessed at.
func classifyIntent(ctx context.Context, streamer Streamer, userID int64, prompt string) (string, error) {
	system := "Classify the user's message as exactly one of PLAN or CHAT. " +
		"PLAN means the user wants a new feature, fix, or change made to their project's code. " +
		"CHAT means the user is asking a question or making conversation that does not require editing files. " +
		`Respond with strict JSON: {"intent": "PLAN"} or {"intent": "CHAT"}.`

	reply, err := streamer.Stream(ctx, llmstreamer.Request{
		UserID: userID,
		Role:   models.RolePlanner,
		IsJSON: true,
		Messages: []llmstreamer.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	var out intentOutput
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return "", apperrors.LLM("malformed intent classification reply", err)
	}
	switch strings.ToUpper(strings.TrimSpace(out.Intent)) {
	case intentPlan:
		return intentPlan, nil
	case intentChat:
		return intentChat, nil
	default:
		return "", apperrors.LLM(fmt.Sprintf("intent classifier returned unrecognized intent %q", out.Intent), nil)
	}
}
