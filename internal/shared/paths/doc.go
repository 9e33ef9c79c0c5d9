// Package paths confines session workspaces to the configured project root.
//
// Every session owns exactly one directory, <root>/<session id>. Session ids
// are validated before they are joined, and removal refuses anything that is
// not strictly below the root. Workspaces carry a marker file so that a
// misconfigured root never gets unrelated directories swept.
//
//	root, _ := paths.NewRoot("/tmp/ide-workspaces")
//	dir, err := root.SessionDir("sess_01HZX...") // /tmp/ide-workspaces/sess_01HZX...
package paths
