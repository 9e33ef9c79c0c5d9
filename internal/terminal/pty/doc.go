// Package pty runs one interactive shell per terminal session on a
// pseudo-terminal.
//
// An ExecutionTarget decides where the shell runs: inside the session's
// sandbox container through docker exec (SandboxedTarget) or, for local
// development only, directly on the host in the workspace (DirectTarget).
// Either way the shell gets a fixed environment and starts with terminal
// echo off, because the connection bridge echoes keystrokes itself.
//
// A Handle fans output out to subscribers in read order and reports the
// exit exactly once, whether the shell ended on its own or through Kill.
package pty
