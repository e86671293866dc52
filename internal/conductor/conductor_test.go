package conductor

import (
	"context"
	"testing"

	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/missionlog"
	"github.com/forgecode/agentcore/internal/project"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/toolfoundry/tools"
)

type scriptedStreamer struct {
	replies []string
	calls   int
}

func (s *scriptedStreamer) Stream(context.Context, llmstreamer.Request) (string, error) {
	if s.calls >= len(s.replies) {
		return `{"thought":"done","fixes":[]}`, nil
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

func newDeps(t *testing.T) (*toolfoundry.Deps, *missionlog.Store) {
	t.Helper()
	root := t.TempDir()
	ws, err := project.OpenWorkspace(root)
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	store, err := missionlog.Open(root)
	if err != nil {
		t.Fatalf("missionlog.Open: %v", err)
	}
	hub := broadcast.NewHub(nil, nil)
	ctrl := control.NewRegistry()
	deps := &toolfoundry.Deps{UserID: 1, Workspace: ws, MissionLog: store, Hub: hub, Control: ctrl}
	return deps, store
}

func TestRunCompletesPlanAndWritesFile(t *testing.T) {
	deps, store := newDeps(t)
	if _, err := store.SetInitialPlan("print hello", []string{"Create file main.py", "Write a print statement in main.py"}); err != nil {
		t.Fatalf("SetInitialPlan: %v", err)
	}

	reg := toolfoundry.NewRegistry()
	tools.RegisterAll(reg, nil, nil)

	streamer := &scriptedStreamer{replies: []string{
		`{"tool_name":"write_file","arguments":{"path":"main.py","content":""}}`,
		`{"tool_name":"write_file","arguments":{"path":"main.py","content":"print(\"Hello, World\")\n"}}`,
	}}
	cond := New(streamer, reg, deps.Hub, deps.Control, nil, nil)

	if err := cond.Run(context.Background(), deps); err != nil {
		t.Fatalf("Run: %v", err)
	}

	content, err := deps.Workspace.ReadFile("main.py")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if content != "print(\"Hello, World\")\n" {
		t.Fatalf("unexpected file contents: %q", content)
	}

	snap := deps.MissionLog.Snapshot()
	for _, task := range snap.Tasks {
		if !task.Done {
			t.Fatalf("expected every task done, task %d is pending", task.ID)
		}
	}
}

// stoppingStreamer files a stop request for userID on its first call,
// the way a user's stop lands while a mission is already running, and
// answers with a valid write_file invocation.
type stoppingStreamer struct {
	ctrl   *control.Registry
	userID int64
}

func (s *stoppingStreamer) Stream(context.Context, llmstreamer.Request) (string, error) {
	s.ctrl.Stop(s.userID)
	return `{"tool_name":"write_file","arguments":{"path":"main.py","content":""}}`, nil
}

func TestRunHaltsOnStopRequest(t *testing.T) {
	deps, store := newDeps(t)
	if _, err := store.SetInitialPlan("goal", []string{"Create file main.py", "Write a print statement in main.py"}); err != nil {
		t.Fatalf("SetInitialPlan: %v", err)
	}

	reg := toolfoundry.NewRegistry()
	tools.RegisterAll(reg, nil, nil)
	cond := New(&stoppingStreamer{ctrl: deps.Control, userID: deps.UserID}, reg, deps.Hub, deps.Control, nil, nil)

	err := cond.Run(context.Background(), deps)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if snap := deps.MissionLog.Snapshot(); snap.Tasks[1].Done {
		t.Fatalf("expected task %d to stay pending after the stop", snap.Tasks[1].ID)
	}
}

func TestRunRetriesThenReplansOnRepeatedFailure(t *testing.T) {
	deps, store := newDeps(t)
	if _, err := store.SetInitialPlan("goal", []string{"Read a file that does not exist"}); err != nil {
		t.Fatalf("SetInitialPlan: %v", err)
	}

	reg := toolfoundry.NewRegistry()
	tools.RegisterAll(reg, nil, nil)

	streamer := &scriptedStreamer{replies: []string{
		`{"tool_name":"read_file","arguments":{"path":"missing.py"}}`,
		`{"tool_name":"read_file","arguments":{"path":"missing.py"}}`,
		`{"plan":["Create file missing.py"]}`,
		`{"tool_name":"write_file","arguments":{"path":"missing.py","content":"ok"}}`,
	}}
	cond := New(streamer, reg, deps.Hub, deps.Control, nil, nil)

	if err := cond.Run(context.Background(), deps); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if streamer.calls < 4 {
		t.Fatalf("expected retry then re-plan then completion, only %d LLM calls made", streamer.calls)
	}
}
