// Package missionlog persists one project's ordered task list to
// mission_log.json, the durable record the Conductor replays against and
// the Broadcast Hub mirrors to connected clients on every mutation.
package missionlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/pkg/models"
)

const fileName = "mission_log.json"

// Store owns the on-disk mission_log.json for one project and serializes
// all access to it.
type Store struct {
	mu   sync.Mutex
	path string
	log  models.MissionLog
}

// Open loads mission_log.json from a project root, creating an empty log
// in memory if the file does not yet exist. The file is only written on
// the first mutation.
func Open(projectRoot string) (*Store, error) {
	path := filepath.Join(projectRoot, fileName)
	s := &Store{path: path, log: models.MissionLog{NextID: 1}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, apperrors.Fatal("read mission log", err)
	}
	if err := json.Unmarshal(data, &s.log); err != nil {
		return nil, apperrors.Fatal("parse mission log", err)
	}
	return s, nil
}

// Snapshot returns a copy of the current mission log.
func (s *Store) Snapshot() models.MissionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() models.MissionLog {
	cp := models.MissionLog{InitialGoal: s.log.InitialGoal, NextID: s.log.NextID}
	cp.Tasks = append([]models.Task(nil), s.log.Tasks...)
	return cp
}

// SetInitialPlan replaces the entire task list with a fresh plan,
// resetting the goal text and ID counter. Used once per mission, when
// the Planning Assembly Line hands off a sequenced task list.
func (s *Store) SetInitialPlan(goal string, descriptions []string) (models.MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = models.MissionLog{InitialGoal: goal, NextID: 1}
	for _, d := range descriptions {
		s.log.Tasks = append(s.log.Tasks, models.Task{ID: s.log.NextID, Description: d})
		s.log.NextID++
	}
	return s.copyLocked(), s.persistLocked()
}

// AddTask appends a new task and returns its assigned ID.
func (s *Store) AddTask(description string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.log.NextID
	s.log.Tasks = append(s.log.Tasks, models.Task{ID: id, Description: description})
	s.log.NextID++
	return id, s.persistLocked()
}

// MarkDone marks a task complete.
func (s *Store) MarkDone(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return apperrors.NotFound("task not found", nil)
	}
	s.log.Tasks[idx].Done = true
	s.log.Tasks[idx].LastError = ""
	return s.persistLocked()
}

// UpdateTask updates a task's description and/or recorded tool call and
// sets its last error to lastError (an empty string clears it), used
// when a task is retried with a revised approach.
func (s *Store) UpdateTask(id int, description string, toolCall *models.Invocation, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return apperrors.NotFound("task not found", nil)
	}
	if description != "" {
		s.log.Tasks[idx].Description = description
	}
	s.log.Tasks[idx].ToolCall = toolCall
	s.log.Tasks[idx].LastError = lastError
	return s.persistLocked()
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx < 0 {
		return apperrors.NotFound("task not found", nil)
	}
	s.log.Tasks = append(s.log.Tasks[:idx], s.log.Tasks[idx+1:]...)
	return s.persistLocked()
}

// ReorderTasks replaces the task ordering with the given ID sequence.
// Every ID must already exist in the log; the set of IDs is unchanged.
func (s *Store) ReorderTasks(order []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[int]models.Task, len(s.log.Tasks))
	for _, t := range s.log.Tasks {
		byID[t.ID] = t
	}
	if len(order) != len(byID) {
		return apperrors.Validation("reorder must include every existing task exactly once", nil)
	}
	reordered := make([]models.Task, 0, len(order))
	seen := make(map[int]struct{}, len(order))
	for _, id := range order {
		if _, dup := seen[id]; dup {
			return apperrors.Validation("reorder must include every existing task exactly once", nil)
		}
		seen[id] = struct{}{}
		t, ok := byID[id]
		if !ok {
			return apperrors.Validation("reorder references unknown task id", nil)
		}
		reordered = append(reordered, t)
	}
	s.log.Tasks = reordered
	return s.persistLocked()
}

// ReplaceTasksFromID truncates the task list at fromID's position in the
// current order (that task and every task after it are dropped) and
// appends the given replacement descriptions, continuing the ID
// sequence. Used by the Conductor's strategic re-plan: every task ahead
// of fromID's position is preserved untouched.
func (s *Store) ReplaceTasksFromID(fromID int, descriptions []string) (models.MissionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(fromID)
	if idx < 0 {
		return models.MissionLog{}, apperrors.NotFound("task not found", nil)
	}
	s.log.Tasks = append([]models.Task(nil), s.log.Tasks[:idx]...)
	for _, d := range descriptions {
		s.log.Tasks = append(s.log.Tasks, models.Task{ID: s.log.NextID, Description: d})
		s.log.NextID++
	}
	return s.copyLocked(), s.persistLocked()
}

func (s *Store) findLocked(id int) int {
	for i, t := range s.log.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked atomically writes the log to disk: it writes to a
// temp file in the same directory then renames over the target, so a
// crash mid-write never leaves mission_log.json truncated.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.log, "", "  ")
	if err != nil {
		return apperrors.Fatal("marshal mission log", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Fatal("write mission log", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apperrors.Fatal("commit mission log", err)
	}
	return nil
}
