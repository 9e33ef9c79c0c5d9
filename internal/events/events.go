package events

import (
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
)

// Kind names an event and forms the last part of its subject.
type Kind string

const (
	SessionCreated   Kind = "session.created"
	SessionStarted   Kind = "session.started"
	SessionDestroyed Kind = "session.destroyed"
	CommandDenied    Kind = "command.denied"
)

// maxCommandLen caps the denied line carried in an event.
const maxCommandLen = 512

// Event is a single audit record.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	Mode      string    `json:"mode,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Command   string    `json:"command,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// New creates an event stamped with a fresh id and the current time.
func New(kind Kind, sessionID string) Event {
	return Event{
		ID:        id.NewEventID().String(),
		Kind:      kind,
		SessionID: sessionID,
		Time:      time.Now().UTC(),
	}
}

// Denied creates a command.denied event.
func Denied(sessionID, rule, reason, line string) Event {
	e := New(CommandDenied, sessionID)
	e.Rule = rule
	e.Reason = reason
	e.Command = truncate(strings.TrimRight(line, "\r\n"), maxCommandLen)
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Publisher delivers events.
type Publisher interface {
	Publish(e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error        { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds published for a session, in order.
func (r *Recorder) Kinds(sessionID string) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []Kind
	for _, e := range r.events {
		if e.SessionID == sessionID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
