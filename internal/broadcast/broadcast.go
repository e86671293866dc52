// Package broadcast implements the Broadcast Hub: a per-user,
// per-client-session fan-out of server-originated WebSocket messages.
// Every side effect the Conductor and its tools produce is mirrored here
// so every open session of a user observes the same mission state.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgecode/agentcore/internal/metrics"
)

const writeWait = 10 * time.Second

// Message types emitted over /ws/command_deck.
const (
	TypeAgentStatus        = "agent_status"
	TypeSystemLog          = "system_log"
	TypeAuraResponse       = "aura_response"
	TypePhase              = "phase"
	TypeMissionLogUpdated  = "mission_log_updated"
	TypeActiveTaskUpdated  = "active_task_updated"
	TypeCodeStreamChunk    = "code_stream_chunk"
	TypeFileWritingPending = "file_writing_pending"
	TypeFileContentUpdated = "file_content_updated"
	TypeFileTreeUpdated    = "file_tree_updated"
	TypeMissionSuccess     = "mission_success"
	TypeMissionFailure     = "mission_failure"
	TypeInternalWSStatus   = "internal_ws_status"
)

// Message is the JSON envelope every broadcast send writes to a socket.
// Content carries a plain-string narration (system_log, phase,
// aura_response, mission_failure); Payload carries a structured body
// (e.g. {taskId: int}) nested under the same "content" key, matching the
// original envelope shape; Status is the one exception, carried under
// its own "status" key, used only by agent_status.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
	Payload any    `json:"-"`
}

// MarshalJSON nests Payload under "content" (never flattened to the
// envelope's top level) so the wire shape matches
// {"type": "...", "content": {...}} rather than spreading the payload's
// fields alongside type/content.
func (m Message) MarshalJSON() ([]byte, error) {
	base := map[string]any{"type": m.Type}
	if m.Status != "" {
		base["status"] = m.Status
	}
	switch {
	case m.Payload != nil:
		base["content"] = m.Payload
	case m.Content != "":
		base["content"] = m.Content
	}
	return json.Marshal(base)
}

// TaskPayload builds the {"taskId": id} body active_task_updated sends
// under its "content" key.
func TaskPayload(taskID int) any {
	return map[string]any{"taskId": taskID}
}

// TasksPayload builds the {"tasks": [...]} body mission_log_updated
// sends under its "content" key. tasks is typically a []models.Task,
// left untyped here to avoid this package depending on pkg/models.
func TasksPayload(tasks any) any {
	return map[string]any{"tasks": tasks}
}

type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *socket) close() {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "superseded"),
		time.Now().Add(writeWait))
	s.conn.Close()
}

// Hub is the two-level user -> client -> socket registry.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[string]*socket
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty Broadcast Hub. If logger is nil, slog.Default
// is used. m may be nil, in which case session-count observations are
// skipped.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[int64]map[string]*socket), logger: logger, metrics: m}
}

// Connect binds a new socket to (user, client). If that tuple already
// has a bound socket, the prior one is closed with "going away" first,
// so at most one socket exists per (user, client) at any time. It sends
// the internal_ws_status handshake message, then spawns a read pump that
// silently discards every client frame (heartbeat pings included) until
// the connection closes, at which point the socket is disconnected.
func (h *Hub) Connect(conn *websocket.Conn, userID int64, clientID string) {
	h.mu.Lock()
	if byClient, ok := h.clients[userID]; ok {
		if prior, ok := byClient[clientID]; ok {
			prior.close()
			h.metrics.BroadcastSessionClosed()
		}
	} else {
		h.clients[userID] = make(map[string]*socket)
	}
	sock := &socket{conn: conn}
	h.clients[userID][clientID] = sock
	h.mu.Unlock()
	h.metrics.BroadcastSessionOpened()

	_ = sock.send(Message{Type: TypeInternalWSStatus, Content: "connected"})
	go h.readPump(sock, userID, clientID)
}

// readPump drains client-originated frames for the lifetime of a socket.
// The protocol defines no client-to-server request other than the
// {"type":"ping"} heartbeat, which is discarded like everything else;
// the loop's only purpose is to notice the connection closing so the
// socket can be pruned from the registry. A socket that Connect already
// replaced under the same (user, client) leaves its successor bound.
func (h *Hub) readPump(sock *socket, userID int64, clientID string) {
	for {
		if _, _, err := sock.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID][clientID] != sock {
		return
	}
	delete(h.clients[userID], clientID)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
	h.metrics.BroadcastSessionClosed()
}

// Disconnect removes (user, client) from the registry, pruning the
// user's map entirely once it is empty.
func (h *Hub) Disconnect(userID int64, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byClient, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := byClient[clientID]; !ok {
		return
	}
	delete(byClient, clientID)
	if len(byClient) == 0 {
		delete(h.clients, userID)
	}
	h.metrics.BroadcastSessionClosed()
}

// SendToClient JSON-sends msg to exactly one client session. On write
// failure that socket is disconnected; other sessions of the user are
// unaffected.
func (h *Hub) SendToClient(msg Message, userID int64, clientID string) {
	h.mu.RLock()
	sock, ok := h.clients[userID][clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := sock.send(msg); err != nil {
		h.logger.Warn("broadcast send failed, disconnecting", "user_id", userID, "client_id", clientID, "error", err)
		h.Disconnect(userID, clientID)
	}
}

// BroadcastToUser sends msg to every session of userID in parallel.
// Per-socket failures are isolated: one dead connection never blocks or
// drops the send to the others.
func (h *Hub) BroadcastToUser(msg Message, userID int64) {
	h.mu.RLock()
	byClient, ok := h.clients[userID]
	targets := make(map[string]*socket, len(byClient))
	for id, s := range byClient {
		targets[id] = s
	}
	h.mu.RUnlock()
	if !ok || len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for clientID, sock := range targets {
		wg.Add(1)
		go func(clientID string, sock *socket) {
			defer wg.Done()
			if err := sock.send(msg); err != nil {
				h.logger.Warn("broadcast send failed, disconnecting", "user_id", userID, "client_id", clientID, "error", err)
				h.Disconnect(userID, clientID)
			}
		}(clientID, sock)
	}
	wg.Wait()
}

// SessionCount reports how many sockets are currently bound for userID,
// mostly useful in tests and metrics.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
