// Package facade is the Agent Facade: the HTTP boundary that classifies
// an incoming prompt's intent, hands PLAN prompts to the Planning
// Assembly Line and CHAT prompts to the Companion Streamer, schedules
// the Mission Conductor on dispatch, serves project and mission-log
// CRUD, and upgrades /ws/command_deck into a Broadcast Hub socket.
// Grounded on the teacher's internal/web.Handler: a Config of injected
// singletons, a net/http.ServeMux built once in setupRoutes, and
// manual method/path-segment dispatch inside each handler rather than a
// router dependency.
package facade

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/authz"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/conductor"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/planning"
	"github.com/forgecode/agentcore/internal/session"
	"github.com/gorilla/websocket"
)

// Config bundles every singleton the facade dispatches work to.
type Config struct {
	Sessions  *session.Manager
	Tokens    *authz.TokenService
	Streamer  Streamer
	Planner   *planning.Line
	Conductor *conductor.Conductor
	Companion *CompanionStreamer
	Hub       *broadcast.Hub
	Control   *control.Registry
	Logger    *slog.Logger
}

// Handler is the Agent Facade's HTTP entry point.
type Handler struct {
	cfg *Config
	mux *http.ServeMux
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// NewHandler builds the facade's HTTP handler.
func NewHandler(cfg *Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{cfg: cfg, mux: http.NewServeMux()}
	h.setupRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/projects", h.handleProjects)
	h.mux.HandleFunc("/projects/dispatch", h.handleDispatch)
	h.mux.HandleFunc("/projects/", h.handleProjectSubpath)
	h.mux.HandleFunc("/ws/command_deck", h.handleCommandDeck)
}

// handleProjects handles project listing and creation, both scoped to
// the authenticated caller.
func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		names, err := h.cfg.Sessions.ListProjects(userID)
		if err != nil {
			h.jsonError(w, err)
			return
		}
		h.jsonResponse(w, map[string]any{"projects": names})
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if !h.decodeBody(w, r, &body) {
			return
		}
		if err := h.cfg.Sessions.NewProject(userID)(body.Name); err != nil {
			h.jsonError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
	}
}

// handleDispatch schedules the Mission Conductor against the caller's
// active project as a detached background task and returns immediately.
func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
		return
	}
	var body struct {
		ProjectName string `json:"project_name"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}

	h.background(userID, body.ProjectName, "", func(ctx context.Context, bundle *session.Bundle) {
		if err := h.cfg.Conductor.Run(ctx, bundle.Deps); err != nil {
			h.cfg.Logger.Error("mission conductor run failed", "user_id", userID, "error", err)
		}
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleProjectSubpath dispatches every /projects/{name}/... route by
// inspecting the trailing path segment, the way the teacher's
// apiSession handler reads a path suffix off r.URL.Path.
func (h *Handler) handleProjectSubpath(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		h.jsonError(w, apperrors.Validation("project name required", nil))
		return
	}
	name := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "prompt":
		h.handlePrompt(w, r, userID, name)
	case len(parts) == 2 && parts[1] == "stop":
		h.handleStop(w, r, userID, name)
	case len(parts) >= 2 && parts[1] == "mission-log":
		h.handleMissionLog(w, r, userID, name, parts[2:])
	case len(parts) == 1:
		h.handleProject(w, r, userID, name)
	default:
		http.NotFound(w, r)
	}
}

// handlePrompt classifies intent and schedules the matching workflow as
// a background task, per §4.12.
func (h *Handler) handlePrompt(w http.ResponseWriter, r *http.Request, userID int64, projectName string) {
	if r.Method != http.MethodPost {
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
		return
	}
	var body struct {
		Prompt  string                `json:"prompt"`
		History []llmstreamer.Message `json:"history"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		h.jsonError(w, apperrors.Validation("prompt is required", nil))
		return
	}

	intent, err := classifyIntent(r.Context(), h.cfg.Streamer, userID, body.Prompt)
	if err != nil {
		h.jsonError(w, err)
		return
	}

	switch intent {
	case intentPlan:
		h.background(userID, projectName, "", func(ctx context.Context, bundle *session.Bundle) {
			if _, err := h.cfg.Planner.Run(ctx, userID, body.Prompt, bundle.Deps.MissionLog); err != nil {
				h.cfg.Logger.Error("planning assembly line failed", "user_id", userID, "error", err)
			}
		})
	case intentChat:
		go func() {
			defer h.recoverBackground(userID)
			h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "thinking"}, userID)
			h.cfg.Companion.Run(context.Background(), userID, body.Prompt, body.History)
		}()
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStop requests cooperative cancellation of the caller's mission.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request, userID int64, _ string) {
	if r.Method != http.MethodPost {
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
		return
	}
	h.cfg.Control.Stop(userID)
	w.WriteHeader(http.StatusOK)
}

// handleProject serves single-project reads and deletion.
func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request, userID int64, name string) {
	switch r.Method {
	case http.MethodGet:
		bundle, err := h.cfg.Sessions.Open(r.Context(), userID, name, "")
		if err != nil {
			h.jsonError(w, err)
			return
		}
		defer bundle.Close()
		tree, err := bundle.Deps.Workspace.GetFileTree()
		if err != nil {
			h.jsonError(w, err)
			return
		}
		h.jsonResponse(w, tree)
	case http.MethodDelete:
		if err := h.cfg.Sessions.DeleteProject(userID, name); err != nil {
			h.jsonError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
	}
}

// handleMissionLog serves §4.3's mission-log CRUD surface:
// GET/POST on the log itself, PATCH/DELETE on one task.
func (h *Handler) handleMissionLog(w http.ResponseWriter, r *http.Request, userID int64, projectName string, rest []string) {
	bundle, err := h.cfg.Sessions.Open(r.Context(), userID, projectName, "")
	if err != nil {
		h.jsonError(w, err)
		return
	}
	defer bundle.Close()
	log := bundle.Deps.MissionLog

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			h.jsonResponse(w, log.Snapshot())
		case http.MethodPost:
			var body struct {
				Description string `json:"description"`
			}
			if !h.decodeBody(w, r, &body) {
				return
			}
			id, err := log.AddTask(body.Description)
			if err != nil {
				h.jsonError(w, err)
				return
			}
			h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(log.Snapshot().Tasks)}, userID)
			h.jsonResponse(w, map[string]int{"id": id})
		default:
			h.jsonError(w, apperrors.Validation("method not allowed", nil))
		}
		return
	}

	if rest[0] == "reorder" {
		if r.Method != http.MethodPut {
			h.jsonError(w, apperrors.Validation("method not allowed", nil))
			return
		}
		var body struct {
			IDs []int `json:"ids"`
		}
		if !h.decodeBody(w, r, &body) {
			return
		}
		if err := log.ReorderTasks(body.IDs); err != nil {
			h.jsonError(w, err)
			return
		}
		h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(log.Snapshot().Tasks)}, userID)
		w.WriteHeader(http.StatusOK)
		return
	}

	taskID, err := strconv.Atoi(rest[0])
	if err != nil {
		h.jsonError(w, apperrors.Validation("task id must be numeric", nil))
		return
	}
	switch r.Method {
	case http.MethodPatch:
		if err := log.MarkDone(taskID); err != nil {
			h.jsonError(w, err)
			return
		}
	case http.MethodDelete:
		if err := log.DeleteTask(taskID); err != nil {
			h.jsonError(w, err)
			return
		}
	default:
		h.jsonError(w, apperrors.Validation("method not allowed", nil))
		return
	}
	h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeMissionLogUpdated, Payload: broadcast.TasksPayload(log.Snapshot().Tasks)}, userID)
	w.WriteHeader(http.StatusOK)
}

// handleCommandDeck upgrades an authenticated request into a Broadcast
// Hub socket. The bearer token travels as a query parameter since
// browsers cannot set WebSocket handshake headers.
func (h *Handler) handleCommandDeck(w http.ResponseWriter, r *http.Request) {
	userID, err := h.cfg.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		conn, upgradeErr := upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			h.jsonError(w, apperrors.Auth("missing or invalid token", err))
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1008, "invalid token"), time.Now().Add(5*time.Second))
		conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Warn("command_deck upgrade failed", "error", err)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	h.cfg.Hub.Connect(conn, userID, clientID)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		h.jsonError(w, authz.ErrInvalidToken)
		return 0, false
	}
	userID, err := h.cfg.Tokens.Verify(strings.TrimSpace(header[len("bearer "):]))
	if err != nil {
		h.jsonError(w, err)
		return 0, false
	}
	return userID, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.jsonError(w, apperrors.Validation("malformed request body", err))
		return false
	}
	return true
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.cfg.Logger.Error("json encode error", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// background opens a fresh session.Bundle detached from the request's
// own context, runs fn, broadcasts agent_status: idle on exit (per
// §4.12's "every background task handler... emits agent_status: idle on
// exit"), and closes the bundle. Panics inside fn are recovered so one
// broken workflow never crashes the process.
func (h *Handler) background(userID int64, projectName, clientID string, fn func(ctx context.Context, bundle *session.Bundle)) {
	go func() {
		defer h.recoverBackground(userID)
		h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "thinking"}, userID)
		ctx := context.Background()
		bundle, err := h.cfg.Sessions.Open(ctx, userID, projectName, clientID)
		if err != nil {
			h.cfg.Logger.Error("background task: open session", "user_id", userID, "error", err)
			h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "idle"}, userID)
			return
		}
		defer bundle.Close()
		fn(ctx, bundle)
		h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "idle"}, userID)
	}()
}

func (h *Handler) recoverBackground(userID int64) {
	if r := recover(); r != nil {
		h.cfg.Logger.Error("background task panicked", "user_id", userID, "panic", r)
		h.cfg.Hub.BroadcastToUser(broadcast.Message{Type: broadcast.TypeAgentStatus, Status: "idle"}, userID)
	}
}
