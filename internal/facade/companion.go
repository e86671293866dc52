package facade

import (
	"context"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/pkg/models"
)

// Streamer is the subset of llmstreamer.Streamer the facade depends on,
// mirroring the seam internal/planning and internal/conductor each
// declare for their own LLM calls.
type Streamer interface {
	Stream(ctx context.Context, req llmstreamer.Request) (string, error)
}

// CompanionStreamer answers a CHAT-intent prompt with role=chat,
// re-labeling the microservice's token chunks as aura_response the same
// way the Conductor re-labels coder chunks as code_stream_chunk. It
// never touches a project's Mission Log or Tool Foundry; it is pure
// conversation.
type CompanionStreamer struct {
	streamer Streamer
	hub      *broadcast.Hub
}

// NewCompanionStreamer builds a CompanionStreamer over the shared LLM
// Streamer and Broadcast Hub singletons.
func NewCompanionStreamer(streamer Streamer, hub *broadcast.Hub) *CompanionStreamer {
	return &CompanionStreamer{streamer: streamer, hub: hub}
}

// Run streams a chat completion for userID and broadcasts it as
// aura_response. prompt is appended to history as the newest user turn.
func (c *CompanionStreamer) Run(ctx context.Context, userID int64, prompt string, history []llmstreamer.Message) {
	messages := make([]llmstreamer.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llmstreamer.Message{Role: "user", Content: prompt})

	_, err := c.streamer.Stream(ctx, llmstreamer.Request{
		UserID:   userID,
		Role:     models.RoleChat,
		Messages: messages,
		StreamAs: broadcast.TypeAuraResponse,
	})
	if err != nil {
		c.hub.BroadcastToUser(broadcast.Message{
			Type:    broadcast.TypeSystemLog,
			Content: "chat reply failed: " + err.Error(),
		}, userID)
		return
	}
	c.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "idle"}, userID)
}
