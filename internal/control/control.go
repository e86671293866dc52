// Package control implements the Mission Control Registry: a single
// cooperative-cancellation flag per user, checked by the Conductor
// between task executions and cleared on every new mission start.
package control

import "sync"

// Registry tracks whether each user's in-flight mission should continue.
// A user with no entry is treated as "should continue" — missions run
// unless explicitly stopped.
type Registry struct {
	mu      sync.Mutex
	running map[int64]bool
}

// NewRegistry creates an empty Mission Control Registry.
func NewRegistry() *Registry {
	return &Registry{running: make(map[int64]bool)}
}

// Start marks a user's mission as running, clearing any prior stop
// request. Called once at the beginning of a new mission.
func (r *Registry) Start(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[userID] = true
}

// Stop requests cancellation of a user's in-flight mission. The
// Conductor observes this on its next ShouldContinue check between
// task executions, not mid-tool-call.
func (r *Registry) Stop(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[userID] = false
}

// ShouldContinue reports whether a user's mission should keep running.
// A user who has never called Start is treated as running, so
// single-task or ad-hoc invocations outside a tracked mission are never
// spuriously cancelled.
func (r *Registry) ShouldContinue(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	running, ok := r.running[userID]
	if !ok {
		return true
	}
	return running
}

// IsActive reports whether userID has a tracked mission in flight,
// regardless of whether a stop has been requested for it. Used by
// callers that must refuse to mutate a project out from under a running
// Conductor (e.g. delete_project), as opposed to ShouldContinue's
// cooperative-cancellation check from inside the mission loop itself.
func (r *Registry) IsActive(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[userID]
	return ok
}

// Finish clears a user's entry once a mission reaches a terminal state,
// so the registry does not grow unboundedly across many short missions.
func (r *Registry) Finish(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, userID)
}
