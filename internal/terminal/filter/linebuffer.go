package filter

import (
	"unicode/utf8"
)

// MaxLineLength bounds the bytes buffered for one command line.
const MaxLineLength = 4096

// EventKind tells the bridge what to do with an Event.
type EventKind int

const (
	// EventEcho carries bytes to write back to the client.
	EventEcho EventKind = iota
	// EventLine carries a complete line including its terminator.
	EventLine
	// EventControl carries a control byte to forward to the shell as is.
	EventControl
)

// Event is one result of feeding keystrokes to a LineBuffer.
type Event struct {
	Kind EventKind
	Data []byte
	// Overflow is set on a line that exceeded MaxLineLength. Its Data holds
	// only the retained prefix.
	Overflow bool
}

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
	escSS3
	escString
)

const (
	keyInterrupt = 0x03
	keyEOF       = 0x04
	keyBackspace = 0x08
	keyTab       = 0x09
	keyLF        = 0x0a
	keyCR        = 0x0d
	keyEsc       = 0x1b
	keyDelete    = 0x7f
)

var eraseRune = []byte("\b \b")

// LineBuffer assembles keystrokes into command lines. The shell runs with
// echo disabled, so the buffer also produces the local echo. It is used by a
// single connection goroutine and is not safe for concurrent use.
type LineBuffer struct {
	buf      []byte
	overflow bool
	esc      escState
	afterCR  bool
}

// NewLineBuffer returns an empty buffer.
func NewLineBuffer() *LineBuffer {
	return &LineBuffer{buf: make([]byte, 0, 256)}
}

// Len returns the number of buffered bytes.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Reset discards the partial line.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
	b.overflow = false
	b.esc = escNone
	b.afterCR = false
}

// Feed consumes raw keystroke bytes and returns the resulting events in order.
func (b *LineBuffer) Feed(data []byte) []Event {
	var (
		events []Event
		echo   []byte
	)
	flushEcho := func() {
		if len(echo) > 0 {
			events = append(events, Event{Kind: EventEcho, Data: echo})
			echo = nil
		}
	}

	for _, c := range data {
		if b.esc != escNone {
			b.consumeEscape(c)
			continue
		}

		if c == keyLF && b.afterCR {
			b.afterCR = false
			continue
		}
		b.afterCR = c == keyCR

		switch {
		case c == keyCR || c == keyLF:
			flushEcho()
			line := make([]byte, 0, len(b.buf)+1)
			line = append(line, b.buf...)
			line = append(line, c)
			events = append(events, Event{Kind: EventLine, Data: line, Overflow: b.overflow})
			b.buf = b.buf[:0]
			b.overflow = false

		case c == keyBackspace || c == keyDelete:
			if len(b.buf) > 0 {
				_, size := utf8.DecodeLastRune(b.buf)
				b.buf = b.buf[:len(b.buf)-size]
				echo = append(echo, eraseRune...)
			}

		case c == keyInterrupt:
			flushEcho()
			b.buf = b.buf[:0]
			b.overflow = false
			events = append(events, Event{Kind: EventEcho, Data: []byte("^C")})
			events = append(events, Event{Kind: EventControl, Data: []byte{c}})

		case c == keyEOF:
			if len(b.buf) == 0 {
				flushEcho()
				events = append(events, Event{Kind: EventControl, Data: []byte{c}})
			}

		case c == keyEsc:
			b.esc = escStart

		case c < 0x20 && c != keyTab:
			// other control bytes are dropped

		default:
			if len(b.buf) >= MaxLineLength {
				b.overflow = true
				continue
			}
			b.buf = append(b.buf, c)
			echo = append(echo, c)
		}
	}
	flushEcho()
	return events
}

// consumeEscape swallows one byte of an ANSI escape sequence.
func (b *LineBuffer) consumeEscape(c byte) {
	switch b.esc {
	case escStart:
		switch c {
		case '[':
			b.esc = escCSI
		case 'O':
			b.esc = escSS3
		case ']', 'P', '_', '^':
			b.esc = escString
		default:
			b.esc = escNone
		}
	case escCSI:
		if c >= 0x40 && c <= 0x7e {
			b.esc = escNone
		}
	case escSS3:
		b.esc = escNone
	case escString:
		// OSC and DCS end with BEL or ST (ESC \).
		if c == 0x07 || c == '\\' {
			b.esc = escNone
		}
	}
}
