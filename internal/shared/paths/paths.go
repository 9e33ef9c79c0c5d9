package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
)

// DefaultProjectRoot is used when no project root is configured.
const DefaultProjectRoot = "/tmp/ide-workspaces"

// MarkerFile is created in every workspace this service makes. Only marked
// directories, or directories named by a generated session id, are ever
// swept.
const MarkerFile = ".ide-session"

// ErrOutsideRoot is returned when a path would escape the project root.
var ErrOutsideRoot = errors.New("path escapes project root")

// Root is the directory under which every session workspace lives.
type Root struct {
	dir string
}

// NewRoot resolves dir to an absolute, cleaned project root.
func NewRoot(dir string) (Root, error) {
	if dir == "" {
		dir = DefaultProjectRoot
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("resolve project root %q: %w", dir, err)
	}
	if abs == string(filepath.Separator) {
		return Root{}, fmt.Errorf("project root cannot be the filesystem root")
	}
	return Root{dir: abs}, nil
}

// Dir returns the absolute project root.
func (r Root) Dir() string {
	return r.dir
}

// Ensure creates the project root if needed.
func (r Root) Ensure() error {
	return os.MkdirAll(r.dir, 0o755)
}

// SessionDir returns the workspace directory for a session id.
func (r Root) SessionDir(sessionID string) (string, error) {
	if err := id.ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	dir := filepath.Join(r.dir, sessionID)
	if !r.Contains(dir) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	return dir, nil
}

// Contains reports whether path is strictly inside the root.
func (r Root) Contains(path string) bool {
	rel, err := filepath.Rel(r.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// CreateWorkspace creates a workspace directory and marks it as owned.
func (r Root) CreateWorkspace(dir string) error {
	if !r.Contains(dir) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, MarkerFile), os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("mark workspace: %w", err)
	}
	return f.Close()
}

// Owned reports whether dir was created by this service.
func (r Root) Owned(dir string) bool {
	if !r.Contains(dir) {
		return false
	}
	if id.IsGeneratedSessionID(filepath.Base(dir)) {
		return true
	}
	info, err := os.Lstat(filepath.Join(dir, MarkerFile))
	return err == nil && info.Mode().IsRegular()
}

// RemoveWorkspace deletes a workspace directory. Paths outside the root are refused.
func (r Root) RemoveWorkspace(dir string) error {
	if !r.Contains(dir) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	return os.RemoveAll(dir)
}

// Workspaces lists the workspace directories under the root that this
// service owns. Foreign directories are left out.
func (r Root) Workspaces() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if dir := filepath.Join(r.dir, e.Name()); r.Owned(dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
