// Package ws serves the interactive terminal over WebSocket.
//
// Endpoint:
//
//	GET /terminal?sessionId=<id>
//
// Server → client: one {"type":"session","sessionId":"..."} message, then
// raw terminal output as text messages.
//
// Client → server: {"type":"resize","cols":N,"rows":N} resizes the
// terminal; any other message is keystrokes.
//
// The handler validates the requested session id before upgrading, keeps
// the connection alive with pings and hands it to a bridge.Bridge. The
// session is gone by the time the handler returns.
//
// Example Usage:
//
//	handler := ws.NewHandler(registry, policy, logger, metrics, publisher, ws.DefaultConfig())
//	router.GET("/terminal", handler.HandleTerminal)
package ws
