package bridge

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// FrameKind tells resize frames from keystroke data.
type FrameKind int

const (
	FrameData FrameKind = iota
	FrameResize
)

// Frame is a decoded client message.
type Frame struct {
	Kind FrameKind
	Data []byte
	Cols uint16
	Rows uint16
}

type controlMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// DecodeFrame classifies a client message. Only a JSON object with type
// "resize" is a control frame; everything else, JSON or not, is keystrokes.
// Out of range dimensions decode as zero, which the shell ignores.
func DecodeFrame(msg []byte) Frame {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{Kind: FrameData, Data: msg}
	}
	var cm controlMessage
	if err := sonic.Unmarshal(trimmed, &cm); err != nil || cm.Type != "resize" {
		return Frame{Kind: FrameData, Data: msg}
	}
	return Frame{Kind: FrameResize, Cols: dimension(cm.Cols), Rows: dimension(cm.Rows)}
}

func dimension(n int) uint16 {
	if n <= 0 || n > 0xffff {
		return 0
	}
	return uint16(n)
}

type sessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// SessionFrame is the first message sent on every connection.
func SessionFrame(sessionID string) ([]byte, error) {
	return sonic.Marshal(sessionMessage{Type: "session", SessionID: sessionID})
}
