package llmstreamer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/pkg/models"
)

type staticResolver struct {
	cfg RoleConfig
	err error
}

func (r staticResolver) Resolve(context.Context, int64, models.Role) (RoleConfig, error) {
	return r.cfg, r.err
}

func newServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Provider-API-Key"); got != "sk-test" {
			t.Errorf("expected forwarded api key, got %q", got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestStreamReturnsFinalReply(t *testing.T) {
	body := `{"type":"chunk","content":"thinking"}
{"type":"system_log","message":"starting"}
{"final_response":{"reply":"done"}}
`
	srv := newServer(t, body, http.StatusOK)
	defer srv.Close()

	resolver := staticResolver{cfg: RoleConfig{Provider: "openai", Model: "gpt-test", Temperature: 0.2, APIKey: "sk-test"}}
	hub := broadcast.NewHub(nil, nil)
	s := New(srv.URL, resolver, hub, control.NewRegistry(), nil, nil)

	reply, err := s.Stream(context.Background(), Request{UserID: 1, Role: models.RolePlanner, Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if reply != "done" {
		t.Fatalf("expected reply %q, got %q", "done", reply)
	}
}

func TestStreamMissingRoleConfigIsConfigError(t *testing.T) {
	resolver := staticResolver{cfg: RoleConfig{}}
	s := New("http://unused", resolver, broadcast.NewHub(nil, nil), control.NewRegistry(), nil, nil)

	_, err := s.Stream(context.Background(), Request{UserID: 1, Role: models.RoleCoder})
	if err == nil || !strings.Contains(err.Error(), "missing provider") {
		t.Fatalf("expected missing provider/model/key error, got %v", err)
	}
}

func TestStreamCancelledMidway(t *testing.T) {
	body := `{"type":"chunk","content":"a"}
{"type":"chunk","content":"b"}
{"final_response":{"reply":"done"}}
`
	srv := newServer(t, body, http.StatusOK)
	defer srv.Close()

	resolver := staticResolver{cfg: RoleConfig{Provider: "openai", Model: "gpt-test", APIKey: "sk-test"}}
	ctrl := control.NewRegistry()
	ctrl.Start(7)
	ctrl.Stop(7)

	s := New(srv.URL, resolver, broadcast.NewHub(nil, nil), ctrl, nil, nil)
	_, err := s.Stream(context.Background(), Request{UserID: 7, Role: models.RoleCoder})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestStreamNonOKStatusIsLLMError(t *testing.T) {
	srv := newServer(t, "", http.StatusInternalServerError)
	defer srv.Close()

	resolver := staticResolver{cfg: RoleConfig{Provider: "openai", Model: "gpt-test", APIKey: "sk-test"}}
	s := New(srv.URL, resolver, broadcast.NewHub(nil, nil), control.NewRegistry(), nil, nil)

	_, err := s.Stream(context.Background(), Request{UserID: 1, Role: models.RoleCoder})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected status 500 error, got %v", err)
	}
}

func TestStreamAsRelabelsCodeChunks(t *testing.T) {
	body := `{"type":"chunk","content":"line one"}
{"final_response":{"reply":"ok"}}
`
	srv := newServer(t, body, http.StatusOK)
	defer srv.Close()

	resolver := staticResolver{cfg: RoleConfig{Provider: "openai", Model: "gpt-test", APIKey: "sk-test"}}
	hub := broadcast.NewHub(nil, nil)
	s := New(srv.URL, resolver, hub, control.NewRegistry(), nil, nil)

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Connect(conn, 3, "editor")
	}))
	defer wsSrv.Close()
	client, _, dialErr := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(wsSrv.URL, "http"), nil)
	if dialErr != nil {
		t.Fatalf("dial: %v", dialErr)
	}
	defer client.Close()
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Fatalf("read handshake: %v", err)
	}

	_, err := s.Stream(context.Background(), Request{
		UserID:   3,
		Role:     models.RoleCoder,
		StreamAs: broadcast.TypeCodeStreamChunk,
		FilePath: "main.py",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var got struct {
		Type    string            `json:"type"`
		Content map[string]string `json:"content"`
	}
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("read relabelled chunk: %v", err)
	}
	if got.Type != broadcast.TypeCodeStreamChunk || got.Content["filePath"] != "main.py" || got.Content["chunk"] != "line one" {
		t.Fatalf("expected %s for main.py carrying %q, got %+v", broadcast.TypeCodeStreamChunk, "line one", got)
	}
}
