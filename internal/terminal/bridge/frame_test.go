package bridge

import (
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want Frame
	}{
		{"resize", `{"type":"resize","cols":120,"rows":40}`, Frame{Kind: FrameResize, Cols: 120, Rows: 40}},
		{"resize with spaces", ` { "type": "resize", "cols": 10, "rows": 5 } `, Frame{Kind: FrameResize, Cols: 10, Rows: 5}},
		{"negative dimensions", `{"type":"resize","cols":-1,"rows":70000}`, Frame{Kind: FrameResize}},
		{"keystrokes", "ls -la\r", Frame{Kind: FrameData, Data: []byte("ls -la\r")}},
		{"other json", `{"type":"input","data":"x"}`, Frame{Kind: FrameData, Data: []byte(`{"type":"input","data":"x"}`)}},
		{"broken json", `{"type":"resize"`, Frame{Kind: FrameData, Data: []byte(`{"type":"resize"`)}},
		{"brace typed by user", "{", Frame{Kind: FrameData, Data: []byte("{")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeFrame([]byte(tt.msg)))
		})
	}
}

func TestSessionFrame(t *testing.T) {
	data, err := SessionFrame("sess_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session","sessionId":"sess_1"}`, string(data))
}

type recordingConn struct {
	mu     sync.Mutex
	frames []string
}

func (c *recordingConn) ReadMessage() (int, []byte, error) { select {} }

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, string(data))
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Close() error { return nil }

func TestOutboundHoldsSplitRunes(t *testing.T) {
	conn := &recordingConn{}
	out := newOutbound(conn, nil)

	word := []byte("héllo")
	require.NoError(t, out.shell(word[:2])) // "h" plus the first byte of "é"
	require.NoError(t, out.shell(word[2:]))

	assert.Equal(t, []string{"h", "éllo"}, conn.frames)
}

func TestOutboundReplacesInvalidBytes(t *testing.T) {
	conn := &recordingConn{}
	out := newOutbound(conn, nil)

	require.NoError(t, out.shell([]byte{'a', 0xff, 'b'}))
	assert.Equal(t, []string{"a\uFFFDb"}, conn.frames)
}

func TestOutboundCoalescesNewlines(t *testing.T) {
	conn := &recordingConn{}
	out := newOutbound(conn, nil)

	for _, chunk := range []string{"\r\n", "\r\n", "\n", "x", "\r\n", "\r\n"} {
		require.NoError(t, out.shell([]byte(chunk)))
	}
	require.NoError(t, out.local([]byte("\r\n")))
	require.NoError(t, out.shell([]byte("\r\n")))

	assert.Equal(t, []string{"\r\n", "x", "\r\n", "\r\n", "\r\n"}, conn.frames)
}

func TestSplitIncomplete(t *testing.T) {
	euro := "€" // three bytes
	tests := []struct {
		in, complete, rest string
	}{
		{"abc", "abc", ""},
		{"", "", ""},
		{"a" + euro[:1], "a", euro[:1]},
		{"a" + euro[:2], "a", euro[:2]},
		{"a" + euro, "a" + euro, ""},
		{strings.Repeat("x", 10) + "\xff", strings.Repeat("x", 10) + "\xff", ""},
	}
	for _, tt := range tests {
		complete, rest := splitIncomplete([]byte(tt.in))
		assert.Equal(t, tt.complete, string(complete), "%q", tt.in)
		assert.Equal(t, tt.rest, string(rest), "%q", tt.in)
	}
}

func TestCloseFrame(t *testing.T) {
	conn := &recordingConn{}
	out := newOutbound(conn, nil)
	require.NoError(t, out.close("bye"))
	require.Len(t, conn.frames, 1)
	assert.Equal(t, string(websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")), conn.frames[0])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closed", StateClosed.String())
}
