package missionlog

import (
	"path/filepath"
	"testing"
)

func TestSetInitialPlanAndLifecycle(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	log, err := s.SetInitialPlan("build a thing", []string{"step one", "step two"})
	if err != nil {
		t.Fatalf("SetInitialPlan: %v", err)
	}
	if len(log.Tasks) != 2 || log.Tasks[0].ID != 1 || log.Tasks[1].ID != 2 {
		t.Fatalf("unexpected initial plan: %+v", log)
	}

	id, err := s.AddTask("step three")
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected next id 3, got %d", id)
	}

	if err := s.MarkDone(1); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := s.UpdateTask(2, "step two revised", nil, "previous attempt failed"); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if err := s.DeleteTask(3); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks after delete, got %d", len(snap.Tasks))
	}
	if !snap.Tasks[0].Done {
		t.Fatal("expected task 1 to be done")
	}
	if snap.Tasks[1].Description != "step two revised" || snap.Tasks[1].LastError != "previous attempt failed" {
		t.Fatalf("unexpected task 2 state: %+v", snap.Tasks[1])
	}

	reloaded, err := Open(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.Snapshot().InitialGoal != "build a thing" {
		t.Fatal("expected reload to recover persisted state")
	}
}

func TestReorderAndReplaceFromID(t *testing.T) {
	root := t.TempDir()
	s, _ := Open(root)
	if _, err := s.SetInitialPlan("goal", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("SetInitialPlan: %v", err)
	}

	if err := s.ReorderTasks([]int{3, 1, 2}); err != nil {
		t.Fatalf("ReorderTasks: %v", err)
	}
	snap := s.Snapshot()
	if snap.Tasks[0].ID != 3 || snap.Tasks[1].ID != 1 || snap.Tasks[2].ID != 2 {
		t.Fatalf("unexpected order: %+v", snap.Tasks)
	}

	if err := s.MarkDone(3); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	replaced, err := s.ReplaceTasksFromID(1, []string{"d", "e"})
	if err != nil {
		t.Fatalf("ReplaceTasksFromID: %v", err)
	}
	if len(replaced.Tasks) != 3 {
		t.Fatalf("expected 1 kept + 2 new tasks, got %+v", replaced.Tasks)
	}
	if replaced.Tasks[0].ID != 3 || !replaced.Tasks[0].Done {
		t.Fatalf("expected completed task 3 preserved first, got %+v", replaced.Tasks[0])
	}
	if replaced.Tasks[1].Description != "d" || replaced.Tasks[2].Description != "e" {
		t.Fatalf("unexpected replacement tasks: %+v", replaced.Tasks[1:])
	}
}

func TestMissionLogFilePath(t *testing.T) {
	root := t.TempDir()
	s, _ := Open(root)
	if _, err := s.AddTask("x"); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if s.path != filepath.Join(root, "mission_log.json") {
		t.Fatalf("unexpected path: %s", s.path)
	}
}
