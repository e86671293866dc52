// Package session assembles the request-scoped bundle of services every
// authenticated HTTP request needs: a loaded project workspace, its
// Mission Log, its Vector Index, a freshly rebuilt Symbol Index, and the
// singleton Broadcast Hub and Mission Control references, collapsed into
// one toolfoundry.Deps value. Nothing here is shared across requests;
// only the Manager itself (and the singletons it wraps) is a long-lived
// process-wide value.
package session

import (
	"context"
	"strings"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/metrics"
	"github.com/forgecode/agentcore/internal/missionlog"
	"github.com/forgecode/agentcore/internal/project"
	"github.com/forgecode/agentcore/internal/symbolindex"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/vectorindex"
)

// Manager builds a Bundle for one authenticated request from the
// process's singletons plus a user id and project name. It is itself a
// singleton, created once at startup.
type Manager struct {
	workspacesRoot string
	embedder       vectorindex.Embedder
	hub            *broadcast.Hub
	control        *control.Registry
	metrics        *metrics.Metrics
}

// NewManager builds a session Manager over the process's long-lived
// singletons. m may be nil.
func NewManager(workspacesRoot string, embedder vectorindex.Embedder, hub *broadcast.Hub, ctrl *control.Registry, m *metrics.Metrics) *Manager {
	return &Manager{
		workspacesRoot: workspacesRoot,
		embedder:       embedder,
		hub:            hub,
		control:        ctrl,
		metrics:        m,
	}
}

// Bundle is the request-scoped set of open resources built by Open. It
// must be closed when the request (or background task) finishes.
type Bundle struct {
	Deps *toolfoundry.Deps

	projectMgr *project.Manager
	vector     *vectorindex.Index
}

// ProjectManager exposes the per-user project.Manager so a caller can
// create, list, or delete projects without opening a full Bundle.
func (b *Bundle) ProjectManager() *project.Manager { return b.projectMgr }

// Close releases every resource Open acquired. Safe to call once per
// Bundle; the workspace filesystem itself is untouched.
func (b *Bundle) Close() error {
	if b.vector != nil {
		return b.vector.Close()
	}
	return nil
}

// Open loads an existing project for userID and assembles the full
// Deps bundle a tool invocation, the Conductor, or the Planning Assembly
// Line needs. The Symbol Index is always rebuilt from disk, since it is
// a pure in-memory cache with no persistence of its own.
func (m *Manager) Open(ctx context.Context, userID int64, projectName, clientID string) (*Bundle, error) {
	projectMgr, err := project.NewManager(m.workspacesRoot, userID)
	if err != nil {
		return nil, err
	}
	p, err := projectMgr.LoadProject(projectName)
	if err != nil {
		return nil, err
	}

	ws, err := project.OpenWorkspace(p.AbsolutePath)
	if err != nil {
		return nil, err
	}

	log, err := missionlog.Open(p.AbsolutePath)
	if err != nil {
		return nil, err
	}

	vec, err := vectorindex.Open(p.AbsolutePath, userID, projectName, m.embedder)
	if err != nil {
		return nil, err
	}

	sym := symbolindex.New()
	if files, err := ws.AllFiles(); err == nil {
		for path, content := range files {
			if !strings.HasSuffix(path, ".py") {
				continue
			}
			_ = sym.UpdateFile(ctx, path, content)
		}
	}

	return &Bundle{
		Deps: &toolfoundry.Deps{
			UserID:      userID,
			ClientID:    clientID,
			Workspace:   ws,
			MissionLog:  log,
			VectorIndex: vec,
			SymbolIndex: sym,
			Hub:         m.hub,
			Control:     m.control,
			Metrics:     m.metrics,
		},
		projectMgr: projectMgr,
		vector:     vec,
	}, nil
}

// CreateProject creates a fresh project workspace for userID and seeds
// an empty Mission Log. Its signature matches tools.NewProjectFunc
// directly, since the Tool Foundry registry is one shared instance
// across every user and gets userID from the calling toolfoundry.Deps
// rather than a bound closure.
func (m *Manager) CreateProject(userID int64, name string) error {
	projectMgr, err := project.NewManager(m.workspacesRoot, userID)
	if err != nil {
		return err
	}
	p, err := projectMgr.NewProject(name)
	if err != nil {
		return err
	}
	if _, err := missionlog.Open(p.AbsolutePath); err != nil {
		return err
	}
	return nil
}

// NewProject curries CreateProject for userID, for call sites (the
// Agent Facade's POST /projects handler) that already know the caller's
// user id and want a plain func(name string) error.
func (m *Manager) NewProject(userID int64) func(name string) error {
	return func(name string) error {
		return m.CreateProject(userID, name)
	}
}

// ListProjects enumerates every project userID owns.
func (m *Manager) ListProjects(userID int64) ([]string, error) {
	projectMgr, err := project.NewManager(m.workspacesRoot, userID)
	if err != nil {
		return nil, err
	}
	return projectMgr.ListProjects()
}

// DeleteProject removes a project's workspace directory. It refuses to
// delete a project with a mission currently running for userID, since
// the Conductor holds open file handles against it mid-run.
func (m *Manager) DeleteProject(userID int64, name string) error {
	if m.control != nil && m.control.IsActive(userID) {
		return apperrors.Validation("cannot delete a project while a mission is running", nil)
	}
	projectMgr, err := project.NewManager(m.workspacesRoot, userID)
	if err != nil {
		return err
	}
	return projectMgr.DeleteProject(name)
}
