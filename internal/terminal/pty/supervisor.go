package pty

import (
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// ErrNotAlive is returned for writes and resizes on a handle whose process
// has exited or been killed.
var ErrNotAlive = errors.New("pty process is not alive")

// DefaultKillTimeout is how long Kill waits after each signal.
const DefaultKillTimeout = 3 * time.Second

// Options configures a spawned shell.
type Options struct {
	SessionID string
	Cols      uint16
	Rows      uint16
	// OnData, when set, is subscribed before the first read so the initial
	// prompt is delivered.
	OnData func([]byte)
}

// Supervisor spawns and owns pseudo-terminal processes.
type Supervisor struct {
	logger      *zap.Logger
	killTimeout time.Duration
}

// NewSupervisor creates a supervisor.
func NewSupervisor(logger *zap.Logger, killTimeout time.Duration) *Supervisor {
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	return &Supervisor{logger: logger, killTimeout: killTimeout}
}

// Spawn starts the target's command attached to a new pseudo-terminal in its
// own session and process group.
func (s *Supervisor) Spawn(target ExecutionTarget, opts Options) (*Handle, error) {
	cmd, err := target.Command()
	if err != nil {
		return nil, fmt.Errorf("build %s shell: %w", target.Mode(), err)
	}
	return s.start(cmd, opts)
}

func (s *Supervisor) start(cmd *exec.Cmd, opts Options) (*Handle, error) {
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}

	// StartWithSize sets Setsid: the shell and everything it starts share a
	// process group whose id is the shell's pid, so Kill can signal the tree.
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	h := newHandle(cmd, ptmx, opts, s.killTimeout, s.logger.With(zap.String("session_id", opts.SessionID)))
	h.logger.Debug("Shell started",
		zap.Int("pid", h.pid),
		zap.Uint16("cols", opts.Cols),
		zap.Uint16("rows", opts.Rows))

	go h.readLoop()
	go h.wait()
	return h, nil
}
