// Package id generates identifiers for terminal sessions, client connections
// and audit events.
//
// All identifiers are prefixed ULIDs (sess_01J..., conn_01J..., evt_01J...):
// they sort by creation time, read well in logs, and draw their entropy from
// crypto/rand so a session id cannot be guessed from a neighbouring one.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session and its workspace directory.
type SessionID string

// ConnID identifies a single client connection to the terminal endpoint.
type ConnID string

// EventID identifies an audit event.
type EventID string

const (
	SessionPrefix = "sess"
	ConnPrefix    = "conn"
	EventPrefix   = "evt"
)

// MaxSessionIDLen bounds client supplied session ids. Ids become directory
// names, so they are kept well below filesystem name limits.
const MaxSessionIDLen = 64

// ErrInvalidSessionID is returned for ids that cannot be used as a workspace name.
var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewConnID generates a new connection ID.
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

// NewEventID generates a new event ID.
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }
func (id EventID) String() string   { return string(id) }

// ValidateSessionID reports whether a client supplied id is usable as a
// session key and workspace directory name.
func ValidateSessionID(s string) error {
	if s == "" || len(s) > MaxSessionIDLen || !sessionIDPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, s)
	}
	return nil
}

// IsGeneratedSessionID reports whether s has the shape of an id made by
// NewSessionID.
func IsGeneratedSessionID(s string) bool {
	rest, ok := strings.CutPrefix(s, SessionPrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// Timestamp extracts the creation time from a generated id, prefixed or not.
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
