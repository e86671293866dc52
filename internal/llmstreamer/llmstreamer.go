// Package llmstreamer is the stateless bridge between agentcore and the
// external LLM microservice (§4.9, §6): it resolves a user's role
// assignment and decrypted provider key, opens a streaming HTTP POST to
// LLM_SERVER_URL/invoke, and re-broadcasts each typed envelope of the
// line-delimited JSON response to the user's Broadcast Hub sessions
// while polling Mission Control for cooperative cancellation between
// chunks.
package llmstreamer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/metrics"
	"github.com/forgecode/agentcore/pkg/models"
)

// requestTimeout bounds a single LLM request per §5's "LLM requests
// bound at ~5 minutes".
const requestTimeout = 5 * time.Minute

// Message is one turn in the chat transcript sent to the microservice.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoleConfig is the resolved (provider, model, temperature, decrypted
// key) for one role, built once per request by internal/session and
// never shared across requests.
type RoleConfig struct {
	Provider    string
	Model       string
	Temperature float64
	APIKey      string
}

// RoleResolver supplies the RoleConfig for a (user, role) pair. Absent
// data (no assignment, no key) must surface as apperrors.Config.
type RoleResolver interface {
	Resolve(ctx context.Context, userID int64, role models.Role) (RoleConfig, error)
}

// Request is the input to Stream, matching §4.9's
// (user_id, role, messages, is_json?, tools?, stream_as?, file_path?).
type Request struct {
	UserID   int64
	Role     models.Role
	Messages []Message
	IsJSON   bool
	Tools    []ToolSpec

	// StreamAs, when set, re-labels "chunk" envelopes as
	// {type: StreamAs, content: {filePath, chunk}} instead of the generic
	// forwarding described on envelope (used by the coder's
	// code_stream_chunk narration).
	StreamAs string
	FilePath string
}

// ToolSpec is the wire shape of one tool definition sent to the
// microservice so the model can emit structured Invocations.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wirePayload struct {
	Provider    string     `json:"provider_name"`
	Model       string     `json:"model_name"`
	Messages    []Message  `json:"messages"`
	Temperature float64    `json:"temperature"`
	IsJSON      bool       `json:"is_json,omitempty"`
	Tools       []ToolSpec `json:"tools,omitempty"`
}

// envelope is one line of the streamed response body. Raw keeps the
// whole line so forward can re-broadcast its other fields. They are not
// passed through verbatim: the broadcast is {type, content: {...}} with
// every field except "type" nested under "content", and a line without
// a "type" field (such as a bare final_response) is not broadcast.
type envelope struct {
	Type          string          `json:"type"`
	Content       string          `json:"content"`
	FinalResponse *finalResponse  `json:"final_response"`
	Raw           json.RawMessage `json:"-"`
}

type finalResponse struct {
	Reply string `json:"reply"`
}

// Streamer is the stateless HTTP bridge. One Streamer is shared across
// requests; it holds no per-user state.
type Streamer struct {
	serverURL string
	http      *http.Client
	resolver  RoleResolver
	hub       *broadcast.Hub
	control   *control.Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New builds a Streamer pointed at an LLM microservice. m may be nil, in
// which case no request metrics are recorded.
func New(serverURL string, resolver RoleResolver, hub *broadcast.Hub, ctrl *control.Registry, logger *slog.Logger, m *metrics.Metrics) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		serverURL: serverURL,
		http:      &http.Client{Timeout: requestTimeout},
		resolver:  resolver,
		hub:       hub,
		control:   ctrl,
		logger:    logger,
		metrics:   m,
	}
}

// Stream sends req to the microservice and returns the captured
// final_response.reply, broadcasting each typed envelope to the user's
// sessions as it arrives. It returns apperrors.Cancelled if
// Mission Control reports the user's mission stopped mid-stream. The
// full round trip's duration and outcome are recorded against req.Role
// regardless of how it returns.
func (s *Streamer) Stream(ctx context.Context, req Request) (reply string, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordLLMRequest(string(req.Role), status, time.Since(start).Seconds())
	}()

	cfg, err := s.resolver.Resolve(ctx, req.UserID, req.Role)
	if err != nil {
		return "", err
	}
	if cfg.Provider == "" || cfg.Model == "" || cfg.APIKey == "" {
		return "", apperrors.Config("missing provider, model, or API key for role "+string(req.Role), nil)
	}

	payload := wirePayload{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Messages:    req.Messages,
		Temperature: cfg.Temperature,
		IsJSON:      req.IsJSON,
		Tools:       req.Tools,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.LLM("encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.LLM("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Provider-API-Key", cfg.APIKey)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		s.logError(req.UserID, "llm request failed", err)
		return "", apperrors.LLM("llm microservice request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("llm microservice returned status %d", resp.StatusCode)
		s.logError(req.UserID, msg, nil)
		return "", apperrors.LLM(msg, nil)
	}

	return s.consume(ctx, req, resp.Body)
}

func (s *Streamer) consume(ctx context.Context, req Request, body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var reply string
	for scanner.Scan() {
		if s.control != nil && !s.control.ShouldContinue(req.UserID) {
			return "", apperrors.Cancelled("llm stream cancelled by stop request")
		}
		select {
		case <-ctx.Done():
			return "", apperrors.Cancelled("llm stream cancelled: " + ctx.Err().Error())
		default:
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			s.logError(req.UserID, "malformed envelope from llm microservice", err)
			continue
		}
		env.Raw = append(json.RawMessage(nil), line...)

		if env.FinalResponse != nil && env.FinalResponse.Reply != "" {
			reply = env.FinalResponse.Reply
		}
		s.forward(req, env)
	}
	if err := scanner.Err(); err != nil {
		return "", apperrors.LLM("read llm stream", err)
	}
	return reply, nil
}

func (s *Streamer) forward(req Request, env envelope) {
	if s.hub == nil {
		return
	}
	if env.Type == "chunk" && req.StreamAs != "" {
		s.hub.BroadcastToUser(broadcast.Message{
			Type: req.StreamAs,
			Payload: map[string]string{
				"filePath": req.FilePath,
				"chunk":    env.Content,
			},
		}, req.UserID)
		return
	}

	var generic map[string]any
	if err := json.Unmarshal(env.Raw, &generic); err != nil {
		return
	}
	typ, _ := generic["type"].(string)
	if typ == "" {
		return
	}
	delete(generic, "type")
	s.hub.BroadcastToUser(broadcast.Message{Type: typ, Payload: generic}, req.UserID)
}

// embedRequest/embedResponse are the wire shapes for the microservice's
// /embed endpoint, used by Embed to satisfy vectorindex.Embedder.
type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed turns texts into sentence-encoder vectors via the same LLM
// microservice Stream talks to, so the Vector Index never needs its own
// HTTP client or provider credentials.
func (s *Streamer) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, apperrors.LLM("encode embed request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.LLM("build embed request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.LLM("embedding microservice request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.LLM(fmt.Sprintf("embedding microservice returned status %d", resp.StatusCode), nil)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.LLM("decode embed response", err)
	}
	return out.Embeddings, nil
}

func (s *Streamer) logError(userID int64, msg string, err error) {
	if s.hub != nil {
		s.hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeSystemLog, Content: msg}, userID)
	}
	if err != nil {
		s.logger.Error(msg, "user_id", userID, "error", err)
	} else {
		s.logger.Warn(msg, "user_id", userID)
	}
}
