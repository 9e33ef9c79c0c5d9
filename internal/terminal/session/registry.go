package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/WebIDE/backend/internal/events"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/pty"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/sandbox"
)

var (
	// ErrSessionNotFound is returned for unknown or destroyed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSessionID is returned when a supplied id cannot name a workspace.
	ErrInvalidSessionID = id.ErrInvalidSessionID
)

const defaultTeardownTimeout = 30 * time.Second

// Options configures a Registry.
type Options struct {
	Root paths.Root
	// Provisioner creates sandboxes. Nil disables sandboxing.
	Provisioner sandbox.Provisioner
	// DirectShell runs shells on the host when sandboxing is disabled.
	// Development only.
	DirectShell bool
	Shell       string
	DockerBin   string
	DockerHost  string
	Cols        uint16
	Rows        uint16

	Supervisor      *pty.Supervisor
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
	Events          events.Publisher
	TeardownTimeout time.Duration
}

// Registry tracks live sessions.
type Registry struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Supervisor == nil {
		opts.Supervisor = pty.NewSupervisor(opts.Logger, pty.DefaultKillTimeout)
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaultTeardownTimeout
	}
	return &Registry{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// SandboxEnabled reports whether sessions are provisioned in sandboxes.
func (r *Registry) SandboxEnabled() bool {
	return r.opts.Provisioner != nil
}

// Provisioner returns the sandbox provisioner, nil when disabled.
func (r *Registry) Provisioner() sandbox.Provisioner {
	return r.opts.Provisioner
}

// GetOrCreate returns the live session with the given id, creating it and
// its workspace when unknown. An empty id allocates a fresh one. A session
// that is being torn down is waited for and replaced.
func (r *Registry) GetOrCreate(sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}
	dir, err := r.opts.Root.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	for {
		r.mu.Lock()
		if s, ok := r.sessions[sessionID]; ok {
			if !s.closing {
				r.mu.Unlock()
				return s, nil
			}
			done := s.done
			r.mu.Unlock()
			<-done
			continue
		}

		if err := r.opts.Root.CreateWorkspace(dir); err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("create workspace %s: %w", dir, err)
		}
		s := newSession(sessionID, dir)
		r.sessions[sessionID] = s
		r.mu.Unlock()

		r.opts.Metrics.SessionCreated()
		r.publish(events.New(events.SessionCreated, sessionID))
		r.logger.Info("Session created", zap.String("session_id", sessionID), zap.String("workspace", dir))
		return s, nil
	}
}

// Get returns a live session.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.closing {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Start attaches sub to the session and, on first call, provisions the
// sandbox and spawns the shell. Concurrent callers share one provisioning
// run. The first caller's subscriber sees output from the first byte.
//
// Sandbox failures do not fail Start; the session falls back to
// ModeBlocked. An error is returned only when the session was destroyed.
func (r *Registry) Start(ctx context.Context, s *Session, sub Subscriber) (Mode, func(), error) {
	detach := s.attach(sub)

	s.startOnce.Do(func() {
		// provisioning is aborted by either the caller going away or Destroy
		pctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		r.start(pctx, s)
	})

	if s.ctx.Err() != nil {
		detach()
		return ModeBlocked, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	return s.Mode(), detach, nil
}

func (r *Registry) start(ctx context.Context, s *Session) {
	log := r.logger.With(zap.String("session_id", s.ID))

	target := r.target(ctx, s, log)
	mode := ModeBlocked

	if target != nil && ctx.Err() == nil {
		h, err := r.opts.Supervisor.Spawn(target, pty.Options{
			SessionID: s.ID,
			Cols:      r.opts.Cols,
			Rows:      r.opts.Rows,
			OnData:    s.broadcast,
		})
		if err != nil {
			log.Error("Failed to spawn shell", zap.String("target", target.Mode()), zap.Error(err))
		} else {
			mode = Mode(target.Mode())
			s.mu.Lock()
			s.pty = h
			s.mu.Unlock()

			h.OnExit(func(status pty.ExitStatus) {
				s.exited(status)
				if status.Killed {
					// teardown is already running
					return
				}
				log.Info("Shell exited", zap.Stringer("status", status))
				go r.DestroySession(s)
			})
		}
	}

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	r.opts.Metrics.SessionStarted(string(mode))
	e := events.New(events.SessionStarted, s.ID)
	e.Mode = string(mode)
	r.publish(e)
	log.Info("Session started", zap.String("mode", string(mode)))
}

// target picks where the shell runs. Nil means no shell.
func (r *Registry) target(ctx context.Context, s *Session, log *zap.Logger) pty.ExecutionTarget {
	if r.opts.Provisioner == nil {
		if r.opts.DirectShell {
			return pty.DirectTarget{WorkspaceDir: s.WorkspaceDir, Shell: r.opts.Shell}
		}
		return nil
	}

	timer := monitoring.NewTimer(r.opts.Metrics)
	h, err := r.opts.Provisioner.Provision(ctx, s.ID, s.WorkspaceDir)
	if err != nil {
		elapsed := timer.Stop("failed")
		log.Warn("Sandbox unavailable, falling back", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil
	}
	timer.Stop("ok")

	s.mu.Lock()
	s.sandbox = h
	s.mu.Unlock()

	return pty.SandboxedTarget{
		ContainerID: h.ID,
		Workdir:     sandbox.Workdir,
		Shell:       r.opts.Shell,
		DockerBin:   r.opts.DockerBin,
		DockerHost:  r.opts.DockerHost,
	}
}

// Destroy kills the shell, removes the sandbox, deletes the workspace and
// forgets the session, in that order. Every step is attempted; failures are
// logged. Unknown ids are ignored. Concurrent calls for one id wait for the
// first to finish.
func (r *Registry) Destroy(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if ok {
		r.DestroySession(s)
	}
}

// DestroySession tears s down if it is still the registered session for its
// id. A session that was already replaced under the same id is left alone.
func (r *Registry) DestroySession(s *Session) {
	r.mu.Lock()
	if r.sessions[s.ID] != s {
		r.mu.Unlock()
		return
	}
	if s.closing {
		r.mu.Unlock()
		<-s.done
		return
	}
	s.closing = true
	r.mu.Unlock()

	s.cancel()
	// waits out an in-flight start, or keeps one from happening
	s.startOnce.Do(func() {})

	r.teardown(s)

	r.mu.Lock()
	if r.sessions[s.ID] == s {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()
	close(s.done)

	r.opts.Metrics.SessionDestroyed()
	r.publish(events.New(events.SessionDestroyed, s.ID))
}

func (r *Registry) teardown(s *Session) {
	log := r.logger.With(zap.String("session_id", s.ID))
	h := s.PTY()
	sb := s.Sandbox()

	if h != nil {
		if err := h.Kill(); err != nil {
			log.Error("Failed to kill shell", zap.Int("pid", h.PID()), zap.Error(err))
			r.opts.Metrics.RecordTeardownError("pty")
		}
	}

	if sb != nil && r.opts.Provisioner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.TeardownTimeout)
		err := r.opts.Provisioner.Teardown(ctx, sb)
		cancel()
		if err != nil {
			log.Error("Failed to remove sandbox", zap.String("container", sb.ID), zap.Error(err))
			r.opts.Metrics.RecordTeardownError("sandbox")
		}
	}

	if err := r.opts.Root.RemoveWorkspace(s.WorkspaceDir); err != nil {
		log.Error("Failed to remove workspace", zap.String("workspace", s.WorkspaceDir), zap.Error(err))
		r.opts.Metrics.RecordTeardownError("workspace")
	}

	log.Info("Session destroyed", zap.Duration("lifetime", time.Since(s.CreatedAt)))
}

// Write sends input to a session's shell.
func (r *Registry) Write(sessionID string, p []byte) error {
	h, err := r.handle(sessionID)
	if err != nil {
		return err
	}
	return h.Write(p)
}

// Resize changes a session's terminal size.
func (r *Registry) Resize(sessionID string, cols, rows uint16) error {
	h, err := r.handle(sessionID)
	if err != nil {
		return err
	}
	return h.Resize(cols, rows)
}

func (r *Registry) handle(sessionID string) (*pty.Handle, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	h := s.PTY()
	if h == nil {
		return nil, pty.ErrNotAlive
	}
	return h, nil
}

// List returns all live sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.closing {
			out = append(out, s)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown destroys every session concurrently. It returns ctx's error if
// teardown does not finish in time.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for sessionID := range r.sessions {
		ids = append(ids, sessionID)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, sessionID := range ids {
		g.Go(func() error {
			r.Destroy(sessionID)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("All sessions destroyed", zap.Int("count", len(ids)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown sessions: %w", ctx.Err())
	}
}

// SweepOrphans removes workspaces and sandboxes left behind by a previous
// process. It must run before any session is created.
func (r *Registry) SweepOrphans(ctx context.Context) (int, error) {
	dirs, err := r.opts.Root.Workspaces()
	if err != nil {
		return 0, fmt.Errorf("list workspaces: %w", err)
	}

	var errs []error
	removed := 0
	for _, dir := range dirs {
		r.mu.Lock()
		_, live := r.sessions[filepath.Base(dir)]
		r.mu.Unlock()
		if live {
			continue
		}
		if err := r.opts.Root.RemoveWorkspace(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if r.opts.Provisioner != nil {
		n, err := r.opts.Provisioner.Sweep(ctx)
		removed += n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep sandboxes: %w", err))
		}
	}

	if removed > 0 {
		r.logger.Info("Removed orphaned session resources", zap.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

func (r *Registry) publish(e events.Event) {
	if err := r.opts.Events.Publish(e); err != nil {
		r.logger.Debug("Failed to publish event", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}
