package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgecode/agentcore/internal/authz"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/conductor"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/planning"
	"github.com/forgecode/agentcore/internal/session"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/toolfoundry/tools"
	"github.com/forgecode/agentcore/internal/vectorindex"
)

// scriptedStreamer plays back replies in order, then falls back to a
// harmless default for any further call (the Polish Pass and mission
// summary narration that fire after every completed mission).
type scriptedStreamer struct {
	replies []string
	calls   int
}

func (s *scriptedStreamer) Stream(_ context.Context, _ llmstreamer.Request) (string, error) {
	if s.calls < len(s.replies) {
		r := s.replies[s.calls]
		s.calls++
		return r, nil
	}
	s.calls++
	return `{"thought":"done","fixes":[]}`, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, vectorindex.EmbeddingDim)
	}
	return out, nil
}

func newTestHandler(t *testing.T, streamer *scriptedStreamer) (*Handler, *session.Manager, *authz.TokenService, *broadcast.Hub, *control.Registry) {
	t.Helper()
	hub := broadcast.NewHub(nil, nil)
	ctrl := control.NewRegistry()
	sessions := session.NewManager(t.TempDir(), stubEmbedder{}, hub, ctrl, nil)
	tokens := authz.NewTokenService("test-secret", 60)

	reg := toolfoundry.NewRegistry()
	tools.RegisterAll(reg, nil, nil)

	h := NewHandler(&Config{
		Sessions:  sessions,
		Tokens:    tokens,
		Streamer:  streamer,
		Planner:   planning.New(streamer, hub, nil),
		Conductor: conductor.New(streamer, reg, hub, ctrl, nil, nil),
		Companion: NewCompanionStreamer(streamer, hub),
		Hub:       hub,
		Control:   ctrl,
	})
	return h, sessions, tokens, hub, ctrl
}

func bearer(token string) string { return "Bearer " + token }

func TestProjectEndpointsRequireAuth(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t, &scriptedStreamer{})

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestCreateListAndDeleteProject(t *testing.T) {
	h, _, tokens, _, _ := newTestHandler(t, &scriptedStreamer{})
	token, err := tokens.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"name": "widget"})
	req := httptest.NewRequest(http.MethodPost, "/projects", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(token))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list projects: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Projects []string `json:"projects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Projects) != 1 || listed.Projects[0] != "widget" {
		t.Fatalf("unexpected project list: %v", listed.Projects)
	}

	req = httptest.NewRequest(http.MethodDelete, "/projects/widget", nil)
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete project: expected 200, got %d", rec.Code)
	}
}

func TestMissionLogCRUD(t *testing.T) {
	h, sessions, tokens, _, _ := newTestHandler(t, &scriptedStreamer{})
	if err := sessions.NewProject(2)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	token, _ := tokens.Issue(2)

	body, _ := json.Marshal(map[string]string{"description": "write the readme"})
	req := httptest.NewRequest(http.MethodPost, "/projects/widget/mission-log", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(token))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add task: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var added struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodPatch, "/projects/widget/mission-log/1", nil)
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark done: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/projects/widget/mission-log", nil)
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var snap struct {
		Tasks []struct {
			Done bool `json:"done"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Tasks) != 1 || !snap.Tasks[0].Done {
		t.Fatalf("expected one completed task, got %+v", snap.Tasks)
	}
}

func TestMissionLogReorder(t *testing.T) {
	h, sessions, tokens, _, _ := newTestHandler(t, &scriptedStreamer{})
	if err := sessions.NewProject(3)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	token, _ := tokens.Issue(3)

	for _, desc := range []string{"first", "second"} {
		body, _ := json.Marshal(map[string]string{"description": desc})
		req := httptest.NewRequest(http.MethodPost, "/projects/widget/mission-log", bytes.NewReader(body))
		req.Header.Set("Authorization", bearer(token))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("add task %q: expected 200, got %d: %s", desc, rec.Code, rec.Body.String())
		}
	}

	body, _ := json.Marshal(map[string][]int{"ids": {2, 1}})
	req := httptest.NewRequest(http.MethodPut, "/projects/widget/mission-log/reorder", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(token))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/projects/widget/mission-log", nil)
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var snap struct {
		Tasks []struct {
			ID int `json:"id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[0].ID != 2 || snap.Tasks[1].ID != 1 {
		t.Fatalf("expected reordered [2,1], got %+v", snap.Tasks)
	}

	body, _ = json.Marshal(map[string][]int{"ids": {2}})
	req = httptest.NewRequest(http.MethodPut, "/projects/widget/mission-log/reorder", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(token))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatalf("reorder with a non-permutation should fail, got 200")
	}
}

func TestStopRequestsCancellation(t *testing.T) {
	h, sessions, tokens, _, ctrl := newTestHandler(t, &scriptedStreamer{})
	if err := sessions.NewProject(3)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	token, _ := tokens.Issue(3)
	ctrl.Start(3)

	req := httptest.NewRequest(http.MethodPost, "/projects/widget/stop", nil)
	req.Header.Set("Authorization", bearer(token))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ctrl.ShouldContinue(3) {
		t.Fatal("expected ShouldContinue to be false after stop")
	}
}

func TestPromptPlanIntentDispatchesPlanningLine(t *testing.T) {
	streamer := &scriptedStreamer{replies: []string{
		`{"intent":"PLAN"}`,
		`{"draft_blueprint":{"summary":"s","components":[],"dependencies":[]},"critique":"fine","final_blueprint":{"summary":"s","components":[],"dependencies":[]}}`,
		`{"audit_passed":true}`,
		`{"final_plan":["Create file main.py"]}`,
	}}
	h, sessions, tokens, _, _ := newTestHandler(t, streamer)
	if err := sessions.NewProject(4)("widget"); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	token, _ := tokens.Issue(4)

	body, _ := json.Marshal(map[string]string{"prompt": "build me a hello world script"})
	req := httptest.NewRequest(http.MethodPost, "/projects/widget/prompt", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer(token))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bundle, err := sessions.Open(context.Background(), 4, "widget", "")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		snap := bundle.Deps.MissionLog.Snapshot()
		bundle.Close()
		if len(snap.Tasks) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the Planning Assembly Line to persist a mission log within the deadline")
}
