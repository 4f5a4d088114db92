package gitresolve

import (
	"fmt"
	"os"
)

// Workspace is an ephemeral directory owning a single repository clone.
// Each resolution call creates its own workspace, so concurrent resolutions
// never share state.
type Workspace struct {
	root string
}

// NewWorkspace creates a temporary directory for one clone. The caller is
// responsible for cleaning up by calling Remove.
func NewWorkspace() (*Workspace, error) {
	root, err := os.MkdirTemp("", "git-resolve-")
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace directory path.
func (w *Workspace) Root() string {
	return w.root
}

// Remove deletes the workspace and all its contents. It is idempotent and
// tolerates the directory already being gone.
func (w *Workspace) Remove() error {
	if w.root == "" {
		return nil
	}
	if _, err := os.Stat(w.root); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to remove resolve workspace %s: %w", w.root, err)
	}
	return nil
}
