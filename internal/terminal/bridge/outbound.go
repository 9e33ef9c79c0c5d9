package bridge

import (
	"bytes"
	"sync"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
)

// outbound serializes writes to the connection. Shell output is sent as
// text frames, so a rune split across two reads is held back until its
// remaining bytes arrive and bytes that are not UTF-8 are replaced.
type outbound struct {
	mu          sync.Mutex
	conn        Conn
	metrics     *monitoring.Metrics
	carry       []byte
	lastNewline bool
}

func newOutbound(conn Conn, metrics *monitoring.Metrics) *outbound {
	return &outbound{conn: conn, metrics: metrics}
}

// shell sends a chunk of shell output. Runs of chunks holding nothing but
// line breaks are collapsed into the first one.
func (o *outbound) shell(p []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	data := p
	if len(o.carry) > 0 {
		data = append(o.carry, p...)
		o.carry = nil
	}
	complete, rest := splitIncomplete(data)
	if len(rest) > 0 {
		o.carry = append([]byte(nil), rest...)
	}
	if len(complete) == 0 {
		return nil
	}
	complete = bytes.ToValidUTF8(complete, []byte("\uFFFD"))

	if newlineOnly(complete) {
		if o.lastNewline {
			return nil
		}
		o.lastNewline = true
	} else {
		o.lastNewline = false
	}
	return o.write(websocket.TextMessage, complete, "data")
}

// local sends text produced by the bridge itself: echo, warnings, banners.
func (o *outbound) local(p []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastNewline = false
	return o.write(websocket.TextMessage, p, "echo")
}

func (o *outbound) frame(p []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.write(websocket.TextMessage, p, "session")
}

func (o *outbound) close(reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return o.conn.WriteMessage(websocket.CloseMessage, msg)
}

func (o *outbound) write(messageType int, p []byte, kind string) error {
	if err := o.conn.WriteMessage(messageType, p); err != nil {
		return err
	}
	o.metrics.RecordWSMessage("out", kind)
	return nil
}

// splitIncomplete separates a trailing partial rune from the rest.
func splitIncomplete(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			return b, nil
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[i:]) {
				return b, nil
			}
			return b[:i], b[i:]
		}
	}
	return b, nil
}

func newlineOnly(p []byte) bool {
	for _, c := range p {
		if c != '\r' && c != '\n' {
			return false
		}
	}
	return len(p) > 0
}
