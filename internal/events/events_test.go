package events

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStampsEvent(t *testing.T) {
	e := New(SessionCreated, "sess_1")
	assert.True(t, strings.HasPrefix(e.ID, "evt_"))
	assert.Equal(t, SessionCreated, e.Kind)
	assert.Equal(t, "sess_1", e.SessionID)
	assert.False(t, e.Time.IsZero())
}

func TestDeniedTrimsAndTruncates(t *testing.T) {
	e := Denied("s", "cd-parent", "leaves the workspace", "cd ..\r\n")
	assert.Equal(t, "cd ..", e.Command)
	assert.Equal(t, "cd-parent", e.Rule)

	long := Denied("s", "r", "", strings.Repeat("x", 2*maxCommandLen))
	assert.Len(t, long.Command, maxCommandLen)
}

func TestEventJSONFields(t *testing.T) {
	data, err := sonic.Marshal(New(SessionStarted, "sess_2"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, sonic.Unmarshal(data, &fields))
	assert.Equal(t, "session.started", fields["kind"])
	assert.Equal(t, "sess_2", fields["session_id"])
	assert.NotContains(t, fields, "rule")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "ide.terminal.command.denied", subject(DefaultSubjectPrefix, CommandDenied))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Publish(New(SessionCreated, "a")))
	require.NoError(t, r.Publish(New(SessionCreated, "b")))
	require.NoError(t, r.Publish(New(SessionDestroyed, "a")))

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, []Kind{SessionCreated, SessionDestroyed}, r.Kinds("a"))
	assert.NoError(t, r.Close())
}

func TestNewPublisherWithoutURLIsNop(t *testing.T) {
	p, err := NewPublisher("", "", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(New(SessionCreated, "x")))
	assert.NoError(t, p.Close())
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "", zap.NewNop())
	assert.Error(t, err)
}
