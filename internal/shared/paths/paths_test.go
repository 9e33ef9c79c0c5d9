package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
)

func TestNewRoot(t *testing.T) {
	root, err := NewRoot("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectRoot, root.Dir())

	_, err = NewRoot("/")
	assert.Error(t, err)

	root, err = NewRoot("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root.Dir()))
}

func TestSessionDir(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"generated", "sess_01HZX3K8J5Q7W2N4M6P8R0T2V4", nil},
		{"traversal", "../escape", id.ErrInvalidSessionID},
		{"dotdot", "..", id.ErrInvalidSessionID},
		{"empty", "", id.ErrInvalidSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := root.SessionDir(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root.Dir(), tt.id), dir)
			assert.True(t, root.Contains(dir))
		})
	}
}

func TestContains(t *testing.T) {
	root, err := NewRoot("/srv/ws")
	require.NoError(t, err)

	assert.True(t, root.Contains("/srv/ws/a"))
	assert.True(t, root.Contains("/srv/ws/a/b"))
	assert.False(t, root.Contains("/srv/ws"))
	assert.False(t, root.Contains("/srv/ws/.."))
	assert.False(t, root.Contains("/srv/wsx"))
	assert.False(t, root.Contains("/etc"))
}

func TestRemoveWorkspace(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	dir, err := root.SessionDir("sess_a")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "f.txt"), []byte("x"), 0o600))

	require.NoError(t, root.RemoveWorkspace(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, root.RemoveWorkspace(root.Dir()), ErrOutsideRoot)
	assert.ErrorIs(t, root.RemoveWorkspace("/etc"), ErrOutsideRoot)
}

func TestWorkspaces(t *testing.T) {
	root, err := NewRoot(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	dirs, err := root.Workspaces()
	require.NoError(t, err)
	assert.Empty(t, dirs)

	require.NoError(t, root.Ensure())
	marked := filepath.Join(root.Dir(), "my-project")
	require.NoError(t, root.CreateWorkspace(marked))
	generated := filepath.Join(root.Dir(), id.NewSessionID().String())
	require.NoError(t, os.Mkdir(generated, 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(root.Dir(), "photos"), 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(root.Dir(), "sess_not_a_ulid"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root.Dir(), "stray.txt"), nil, 0o600))

	dirs, err = root.Workspaces()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{marked, generated}, dirs)
}

func TestCreateWorkspace(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	dir, err := root.SessionDir("client-chosen")
	require.NoError(t, err)
	assert.False(t, root.Owned(dir))

	require.NoError(t, root.CreateWorkspace(dir))
	assert.FileExists(t, filepath.Join(dir, MarkerFile))
	assert.True(t, root.Owned(dir))

	// creating an existing workspace keeps its contents
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600))
	require.NoError(t, root.CreateWorkspace(dir))
	assert.FileExists(t, filepath.Join(dir, "main.go"))

	assert.ErrorIs(t, root.CreateWorkspace("/etc/ide"), ErrOutsideRoot)
	assert.False(t, root.Owned(root.Dir()))
}
