package session

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/pty"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/sandbox"
)

// Mode describes where a session's shell runs.
type Mode string

const (
	ModePending   Mode = "pending"
	ModeSandboxed Mode = "sandboxed"
	ModeDirect    Mode = "direct"
	// ModeBlocked sessions have no shell at all.
	ModeBlocked Mode = "blocked"
)

// Subscriber receives a session's shell output and exit.
type Subscriber struct {
	OnData func([]byte)
	OnExit func(pty.ExitStatus)
}

// Session is one terminal session. Fields other than the identity are
// mutated only by the registry.
type Session struct {
	ID           string
	WorkspaceDir string
	CreatedAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once

	mu      sync.RWMutex
	mode    Mode
	pty     *pty.Handle
	sandbox *sandbox.Handle

	subsMu  sync.Mutex
	subs    map[int]Subscriber
	nextSub int

	// closing is guarded by the registry lock.
	closing bool
	done    chan struct{}
}

func newSession(sessionID, dir string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:           sessionID,
		WorkspaceDir: dir,
		CreatedAt:    time.Now().UTC(),
		ctx:          ctx,
		cancel:       cancel,
		mode:         ModePending,
		subs:         make(map[int]Subscriber),
		done:         make(chan struct{}),
	}
}

// Mode returns the session mode, ModePending until started.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// PTY returns the shell handle, nil for blocked or unstarted sessions.
func (s *Session) PTY() *pty.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pty
}

// Sandbox returns the sandbox handle, nil unless sandboxed.
func (s *Session) Sandbox() *sandbox.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sandbox
}

// Done is closed when the session has been destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Attached returns the number of subscribers.
func (s *Session) Attached() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Session) attach(sub Subscriber) (detach func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Session) subscribers() []Subscriber {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	out := make([]Subscriber, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if sub, ok := s.subs[i]; ok {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Session) broadcast(p []byte) {
	for _, sub := range s.subscribers() {
		if sub.OnData != nil {
			sub.OnData(p)
		}
	}
}

func (s *Session) exited(status pty.ExitStatus) {
	for _, sub := range s.subscribers() {
		if sub.OnExit != nil {
			sub.OnExit(status)
		}
	}
}
