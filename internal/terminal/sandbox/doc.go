// Package sandbox provisions disposable containers that isolate a terminal
// session.
//
// Each sandboxed session gets its own container from the configured image,
// named ide-sandbox-<uuid> and labelled ide.session=<session id>. The
// session workspace is bind-mounted at /workspace, all capabilities are
// dropped, privilege gain is disabled, and memory, pids and network are
// restricted. The container idles on sleep infinity; the interactive shell
// is attached later with docker exec.
//
// Provisioning failures wrap ErrSandboxUnavailable so the caller can fall
// back instead of failing the connection.
package sandbox
