// Package project owns the per-user workspace tree: creating, loading,
// listing, and deleting projects, plus the sandboxed file I/O and
// file-tree snapshots every tool call builds on.
package project

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/sandbox"
	"github.com/forgecode/agentcore/pkg/models"
)

// excludedDirs are never walked or listed in a file-tree snapshot.
var excludedDirs = map[string]struct{}{
	".git":         {},
	".venv":        {},
	"__pycache__":  {},
	".rag_db":      {},
	"node_modules": {},
}

// Manager owns one user's workspace root: <workspaces_root>/<user_id>/.
type Manager struct {
	userRoot string
}

// NewManager creates a Manager scoped to one user's workspace root,
// creating the directory if it does not exist.
func NewManager(workspacesRoot string, userID int64) (*Manager, error) {
	root := filepath.Join(workspacesRoot, itoa(userID))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Fatal("create user workspace root", err)
	}
	return &Manager{userRoot: root}, nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NewProject creates a fresh project workspace directory.
func (m *Manager) NewProject(name string) (*models.Project, error) {
	path := filepath.Join(m.userRoot, name)
	if _, err := os.Stat(path); err == nil {
		return nil, apperrors.Validation("project already exists: "+name, nil)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, apperrors.Fatal("create project directory", err)
	}
	return &models.Project{Name: name, AbsolutePath: path}, nil
}

// LoadProject returns the absolute path of an existing project.
func (m *Manager) LoadProject(name string) (*models.Project, error) {
	path := filepath.Join(m.userRoot, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, apperrors.NotFound("project not found: "+name, err)
	}
	return &models.Project{Name: name, AbsolutePath: path}, nil
}

// ListProjects enumerates the user's workspace root.
func (m *Manager) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(m.userRoot)
	if err != nil {
		return nil, apperrors.Fatal("list projects", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteProject recursively removes a project's workspace directory.
func (m *Manager) DeleteProject(name string) error {
	if name == "" || name == "." || name == ".." {
		return apperrors.Validation("invalid project name", nil)
	}
	path := filepath.Join(m.userRoot, name)
	if _, err := os.Stat(path); err != nil {
		return apperrors.NotFound("project not found: "+name, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return apperrors.Fatal("delete project", err)
	}
	return nil
}

// Workspace is a sandboxed view over one active project, used for every
// file I/O operation tools and the Conductor perform.
type Workspace struct {
	sandbox *sandbox.Sandbox
	root    string
}

// OpenWorkspace builds a sandboxed Workspace over an active project.
func OpenWorkspace(projectRoot string) (*Workspace, error) {
	sb, err := sandbox.New(projectRoot)
	if err != nil {
		return nil, err
	}
	return &Workspace{sandbox: sb, root: sb.Root}, nil
}

// Root returns the workspace's absolute project root.
func (w *Workspace) Root() string { return w.root }

// Resolve exposes the underlying sandbox resolution for tools that need
// an absolute path without performing I/O themselves.
func (w *Workspace) Resolve(relative string) (string, error) {
	return w.sandbox.Resolve(relative)
}

// ReadFile reads a sandboxed, project-relative file.
func (w *Workspace) ReadFile(relative string) (string, error) {
	abs, err := w.sandbox.Resolve(relative)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", apperrors.NotFound("file not found: "+relative, err)
	}
	return string(data), nil
}

// WriteFile writes a sandboxed, project-relative file, creating parent
// directories as needed.
func (w *Workspace) WriteFile(relative, content string) error {
	abs, err := w.sandbox.Resolve(relative)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperrors.Fatal("create parent directories", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return apperrors.Fatal("write file", err)
	}
	return nil
}

// GetFileTree builds a recursive snapshot of the workspace, excluding the
// standard noise directories.
func (w *Workspace) GetFileTree() (models.FileNode, error) {
	return buildTree(w.root, w.root, "")
}

// AllFiles reads every file under the workspace (excluding the standard
// noise directories), keyed by project-relative, forward-slashed path.
// Used to seed a full Vector Index rebuild (reindex_project).
func (w *Workspace) AllFiles() (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := excludedDirs[info.Name()]; skip && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, apperrors.Fatal("walk project files", err)
	}
	return out, nil
}

func buildTree(absPath, root, relPath string) (models.FileNode, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return models.FileNode{}, apperrors.Fatal("stat path", err)
	}
	name := filepath.Base(absPath)
	if relPath == "" {
		relPath = "."
	}
	node := models.FileNode{Name: name, Path: filepath.ToSlash(relPath), Kind: "file"}
	if !info.IsDir() {
		return node, nil
	}
	node.Kind = "dir"

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return models.FileNode{}, apperrors.Fatal("read directory", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if _, skip := excludedDirs[e.Name()]; skip {
			continue
		}
		childRel := e.Name()
		if relPath != "." {
			childRel = relPath + "/" + e.Name()
		}
		child, err := buildTree(filepath.Join(absPath, e.Name()), root, childRel)
		if err != nil {
			return models.FileNode{}, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
