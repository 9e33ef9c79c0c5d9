package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebIDE/backend/internal/events"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/filter"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/pty"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/session"
)

// State is a bridge lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateProvisioning
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateProvisioning:
		return "provisioning"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
	crlf        = "\r\n"
)

var (
	unavailableBanner = colorYellow + "Terminal unavailable: no sandbox is available for this session, so commands cannot be run." + colorReset + crlf
	unavailableNotice = colorYellow + "Terminal unavailable: input ignored." + colorReset + crlf
)

// Conn is the part of a WebSocket connection the bridge needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Options holds a bridge's collaborators.
type Options struct {
	Registry *session.Registry
	Policy   *filter.Policy
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Events   events.Publisher
}

// Bridge runs one connection.
type Bridge struct {
	conn        Conn
	requestedID string
	connID      string
	opts        Options
	logger      *zap.Logger

	out   *outbound
	lines *filter.LineBuffer
	state atomic.Int32

	sessionID string
	mode      session.Mode

	destroyOnce sync.Once
}

// New creates a bridge for conn. An empty requestedID asks for a new session.
func New(conn Conn, requestedID string, opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Policy == nil {
		opts.Policy = filter.DefaultPolicy()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	connID := id.NewConnID().String()
	return &Bridge{
		conn:        conn,
		requestedID: requestedID,
		connID:      connID,
		opts:        opts,
		logger:      opts.Logger.With(zap.String("conn_id", connID)),
		out:         newOutbound(conn, opts.Metrics),
		lines:       filter.NewLineBuffer(),
	}
}

// State returns the current state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// SessionID returns the id of the bridged session once resolved.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Run drives the connection until the client disconnects, the shell exits
// or ctx is cancelled. The session is destroyed before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.setState(StateClosed)

	s, err := b.opts.Registry.GetOrCreate(b.requestedID)
	if err != nil {
		_ = b.out.local([]byte(colorRed + "Session rejected: " + err.Error() + colorReset + crlf))
		_ = b.conn.Close()
		return fmt.Errorf("resolve session: %w", err)
	}
	b.sessionID = s.ID
	b.logger = b.logger.With(zap.String("session_id", s.ID))
	defer b.destroy(s)

	frame, err := SessionFrame(s.ID)
	if err != nil {
		return fmt.Errorf("encode session frame: %w", err)
	}
	if err := b.out.frame(frame); err != nil {
		_ = b.conn.Close()
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Reading starts before provisioning so a client that leaves early
	// cancels it.
	frames := make(chan []byte, 64)
	go b.readLoop(ctx, cancel, frames)
	defer func() {
		cancel()
		_ = b.conn.Close()
		for range frames {
		}
	}()

	b.setState(StateProvisioning)
	mode, detach, err := b.opts.Registry.Start(ctx, s, session.Subscriber{
		OnData: b.forward,
		OnExit: b.exited,
	})
	if err != nil {
		b.logger.Debug("Session ended during provisioning", zap.Error(err))
		return nil
	}
	defer detach()
	b.mode = mode

	b.setState(StateStreaming)
	if mode == session.ModeBlocked {
		_ = b.out.local([]byte(unavailableBanner))
	}
	b.logger.Info("Terminal connected", zap.String("mode", string(mode)))

	b.stream(ctx, s, frames)
	return nil
}

func (b *Bridge) stream(ctx context.Context, s *session.Session, frames <-chan []byte) {
	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				b.logger.Info("Terminal disconnected")
				return
			}
			b.handle(s, msg)
		case <-s.Done():
			_ = b.out.close("session ended")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, cancel context.CancelFunc, frames chan<- []byte) {
	defer close(frames)
	defer cancel()
	for {
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			b.logger.Debug("Connection read ended", zap.Error(err))
			return
		}
		select {
		case frames <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) handle(s *session.Session, msg []byte) {
	f := DecodeFrame(msg)
	if f.Kind == FrameResize {
		b.opts.Metrics.RecordWSMessage("in", "resize")
		if h := s.PTY(); h != nil {
			if err := h.Resize(f.Cols, f.Rows); err != nil && !errors.Is(err, pty.ErrNotAlive) {
				b.logger.Warn("Resize failed", zap.Error(err))
			}
		}
		return
	}

	b.opts.Metrics.RecordWSMessage("in", "data")
	h := s.PTY()
	if b.mode == session.ModeBlocked || h == nil {
		_ = b.out.local([]byte(unavailableNotice))
		return
	}

	for _, ev := range b.lines.Feed(f.Data) {
		switch ev.Kind {
		case filter.EventEcho:
			_ = b.out.local(ev.Data)
		case filter.EventControl:
			b.input(h, ev.Data)
		case filter.EventLine:
			b.submit(h, ev)
		}
	}
}

func (b *Bridge) submit(h *pty.Handle, ev filter.Event) {
	_ = b.out.local([]byte(crlf))

	verdict := filter.TooLong
	if !ev.Overflow {
		verdict = b.opts.Policy.Evaluate(string(ev.Data))
	}
	if verdict.Allowed {
		b.input(h, ev.Data)
		return
	}

	b.logger.Info("Command denied",
		zap.String("rule", verdict.Rule),
		zap.String("category", string(verdict.Category)))
	b.opts.Metrics.RecordDenial(verdict.Rule)
	if err := b.opts.Events.Publish(events.Denied(b.sessionID, verdict.Rule, verdict.Reason, string(ev.Data))); err != nil {
		b.logger.Debug("Failed to publish denial", zap.Error(err))
	}
	_ = b.out.local([]byte(colorRed + "Command blocked: " + verdict.Reason + colorReset + crlf + pty.PromptMarker))
}

func (b *Bridge) input(h *pty.Handle, p []byte) {
	if err := h.Write(p); err != nil && !errors.Is(err, pty.ErrNotAlive) {
		b.logger.Warn("Write to shell failed", zap.Error(err))
	}
}

func (b *Bridge) forward(p []byte) {
	if err := b.out.shell(p); err != nil {
		b.logger.Debug("Write to connection failed", zap.Error(err))
	}
}

func (b *Bridge) exited(status pty.ExitStatus) {
	if status.Killed {
		return
	}
	_ = b.out.local([]byte(crlf + colorYellow + "[process exited: " + status.String() + "]" + colorReset + crlf))
}

func (b *Bridge) destroy(s *session.Session) {
	b.destroyOnce.Do(func() {
		b.setState(StateClosing)
		b.opts.Registry.DestroySession(s)
	})
}
