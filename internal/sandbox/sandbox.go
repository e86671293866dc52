// Package sandbox resolves and validates every user- or LLM-supplied
// path against a project root, rejecting anything that would escape it.
package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/forgecode/agentcore/internal/apperrors"
)

// Sandbox resolves paths relative to a fixed project root.
type Sandbox struct {
	Root string
}

// New creates a Sandbox rooted at root. root is made absolute immediately
// so later comparisons are not sensitive to working-directory changes.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Validation("resolve project root", err)
	}
	return &Sandbox{Root: abs}, nil
}

// Resolve returns the absolute path for candidate, guaranteed to be
// lexically inside the sandbox root. Relative candidates are resolved
// against the root; absolute candidates must already be inside it.
// Forward slashes are canonical input; the OS separator is used for the
// actual filesystem path.
func (s *Sandbox) Resolve(candidate string) (string, error) {
	clean := strings.TrimSpace(candidate)
	if clean == "" {
		return "", apperrors.Validation("path is required", nil)
	}
	clean = filepath.FromSlash(clean)

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(s.Root, clean)
	}

	rel, err := filepath.Rel(s.Root, target)
	if err != nil {
		return "", apperrors.Validation("resolve path", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Validation("path escapes project root: "+candidate, nil)
	}
	return target, nil
}

// Relative returns abs expressed relative to the sandbox root, with
// forward slashes, for use in client-facing messages and broadcasts.
func (s *Sandbox) Relative(abs string) (string, error) {
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil {
		return "", apperrors.Validation("make path relative", err)
	}
	return filepath.ToSlash(rel), nil
}
