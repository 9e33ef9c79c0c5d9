// Package main is the entry point for the IDE terminal backend.
//
// The server gives each browser IDE tab a shell bound to a per-session
// workspace directory:
//
//	Browser (xterm) → WebSocket /terminal → command filter → PTY
//	                                                      → container sandbox
//
// The server provides:
//   - WebSocket terminal sessions keyed by sessionId
//   - A container sandbox per session, with a blocked fallback
//   - A command line filter in front of the shell
//   - Admin endpoints for listing and killing sessions
//   - Prometheus metrics and optional NATS audit events
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Sandboxed sessions
//	./ide-terminal --sandbox --port 8000
//
//	# Local development shell, colored logs
//	./ide-terminal --direct-shell --dev
//
//	# Check a command line against the filter
//	./ide-terminal policy check 'cd ..'
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
