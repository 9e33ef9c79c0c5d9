package session

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
)

// Info is the JSON view of a session served by the admin API.
type Info struct {
	ID             string    `json:"id"`
	Mode           Mode      `json:"mode"`
	WorkspaceDir   string    `json:"workspace_dir"`
	CreatedAt      time.Time `json:"created_at"`
	PID            int       `json:"pid,omitempty"`
	Alive          bool      `json:"alive"`
	Cols           uint16    `json:"cols,omitempty"`
	Rows           uint16    `json:"rows,omitempty"`
	SandboxID      string    `json:"sandbox_id,omitempty"`
	Attached       int       `json:"attached"`
	WorkspaceBytes int64     `json:"workspace_bytes"`
}

// Describe returns a point-in-time view of s.
func Describe(s *Session) Info {
	info := Info{
		ID:           s.ID,
		Mode:         s.Mode(),
		WorkspaceDir: s.WorkspaceDir,
		CreatedAt:    s.CreatedAt,
		Attached:     s.Attached(),
	}
	if h := s.PTY(); h != nil {
		info.PID = h.PID()
		info.Alive = h.Alive()
		info.Cols, info.Rows = h.Size()
	}
	if sb := s.Sandbox(); sb != nil {
		info.SandboxID = sb.ID
	}
	info.WorkspaceBytes, _ = workspaceSize(s.WorkspaceDir)
	return info
}

// workspaceSize sums regular file sizes below dir without following links.
func workspaceSize(dir string) (int64, error) {
	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			// files may vanish while the shell is running
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total.Add(fi.Size())
		}
		return nil
	})
	return total.Load(), err
}
