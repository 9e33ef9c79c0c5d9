package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ExitStatus describes how a shell ended.
type ExitStatus struct {
	Code   int
	Signal string
	// Killed is true when the exit was caused by Kill.
	Killed bool
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit %d", s.Code)
}

const (
	readBufferSize = 32 * 1024
	// drainTimeout bounds how long the waiter lets the reader drain output
	// still buffered in the terminal after the shell exits. Background jobs
	// holding the terminal open would otherwise block teardown.
	drainTimeout = 250 * time.Millisecond
)

// Handle is a live pseudo-terminal process. Writes and resizes are only
// accepted while it is alive; a handle is never reused after exit.
type Handle struct {
	pid         int
	owner       string
	cmd         *exec.Cmd
	ptmx        *os.File
	killTimeout time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	alive  bool
	killed bool
	cols   uint16
	rows   uint16

	writeMu sync.Mutex

	subsMu    sync.Mutex
	subs      map[int]func([]byte)
	nextSub   int
	exitFns   []func(ExitStatus)
	exited    bool
	status    ExitStatus
	readDone  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newHandle(cmd *exec.Cmd, ptmx *os.File, opts Options, killTimeout time.Duration, logger *zap.Logger) *Handle {
	h := &Handle{
		pid:         cmd.Process.Pid,
		owner:       opts.SessionID,
		cmd:         cmd,
		ptmx:        ptmx,
		killTimeout: killTimeout,
		logger:      logger,
		alive:       true,
		cols:        opts.Cols,
		rows:        opts.Rows,
		subs:        make(map[int]func([]byte)),
		readDone:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	if opts.OnData != nil {
		h.subs[0] = opts.OnData
		h.nextSub = 1
	}
	return h
}

// PID returns the shell's process id.
func (h *Handle) PID() int { return h.pid }

// Owner returns the id of the session that owns the handle.
func (h *Handle) Owner() string { return h.owner }

// Size returns the current dimensions.
func (h *Handle) Size() (cols, rows uint16) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cols, h.rows
}

// Alive reports whether the process can still accept input.
func (h *Handle) Alive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alive
}

// Done is closed once the process has exited and all output was delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Write sends input bytes to the terminal.
func (h *Handle) Write(p []byte) error {
	if !h.Alive() {
		return ErrNotAlive
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.ptmx.Write(p); err != nil {
		if !h.Alive() {
			return ErrNotAlive
		}
		return fmt.Errorf("write pty: %w", err)
	}
	return nil
}

// Resize changes the terminal dimensions. Zero values are ignored; the last
// call wins.
func (h *Handle) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alive {
		return ErrNotAlive
	}
	if err := pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	h.cols, h.rows = cols, rows
	return nil
}

// OnData subscribes fn to every output chunk read from now on, in read
// order. Nothing is replayed. The returned function unsubscribes.
func (h *Handle) OnData(fn func([]byte)) (unsubscribe func()) {
	h.subsMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.subsMu.Unlock()

	return func() {
		h.subsMu.Lock()
		delete(h.subs, id)
		h.subsMu.Unlock()
	}
}

// OnExit registers fn to run exactly once when the process has ended. If it
// already has, fn runs immediately.
func (h *Handle) OnExit(fn func(ExitStatus)) {
	h.subsMu.Lock()
	if h.exited {
		status := h.status
		h.subsMu.Unlock()
		fn(status)
		return
	}
	h.exitFns = append(h.exitFns, fn)
	h.subsMu.Unlock()
}

// Kill hangs up and terminates the process group, escalating to SIGKILL
// after the kill timeout. It returns once the process is gone. Killing a
// dead handle is a no-op.
func (h *Handle) Kill() error {
	h.mu.Lock()
	wasAlive := h.alive
	h.alive = false
	if wasAlive {
		h.killed = true
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	h.signal(unix.SIGHUP)
	h.signal(unix.SIGTERM)
	if h.waitDone(h.killTimeout) {
		return nil
	}

	h.logger.Warn("Shell ignored SIGTERM, sending SIGKILL", zap.Int("pid", h.pid))
	h.signal(unix.SIGKILL)
	if h.waitDone(h.killTimeout) {
		return nil
	}
	return fmt.Errorf("process %d did not exit after SIGKILL", h.pid)
}

func (h *Handle) signal(sig syscall.Signal) {
	// negative pid addresses the process group
	if err := unix.Kill(-h.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		h.logger.Debug("Signal failed", zap.Int("pid", h.pid), zap.String("signal", unix.SignalName(sig)), zap.Error(err))
	}
}

func (h *Handle) waitDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// ExitStatus returns the exit status once Done is closed.
func (h *Handle) ExitStatus() (ExitStatus, bool) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return h.status, h.exited
}

func (h *Handle) readLoop() {
	defer close(h.readDone)
	buf := make([]byte, readBufferSize)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.deliver(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (h *Handle) deliver(chunk []byte) {
	h.subsMu.Lock()
	fns := make([]func([]byte), 0, len(h.subs))
	for i := 0; i < h.nextSub; i++ {
		if fn, ok := h.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	h.subsMu.Unlock()

	for _, fn := range fns {
		fn(chunk)
	}
}

func (h *Handle) wait() {
	_ = h.cmd.Wait()

	h.mu.Lock()
	h.alive = false
	killed := h.killed
	h.mu.Unlock()

	select {
	case <-h.readDone:
	case <-time.After(drainTimeout):
	}
	h.closeOnce.Do(func() { _ = h.ptmx.Close() })
	<-h.readDone

	status := exitStatus(h.cmd)
	status.Killed = killed

	h.subsMu.Lock()
	h.exited = true
	h.status = status
	fns := h.exitFns
	h.exitFns = nil
	h.subsMu.Unlock()

	close(h.done)
	h.logger.Debug("Shell exited", zap.Int("pid", h.pid), zap.Stringer("status", status), zap.Bool("killed", killed))

	for _, fn := range fns {
		fn(status)
	}
}

func exitStatus(cmd *exec.Cmd) ExitStatus {
	if cmd.ProcessState == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: unix.SignalName(ws.Signal())}
	}
	return ExitStatus{Code: cmd.ProcessState.ExitCode()}
}
