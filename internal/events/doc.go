// Package events publishes terminal audit events: session lifecycle changes
// and denied command lines.
//
// Events go to NATS subjects named <prefix>.<kind> when a server URL is
// configured, and nowhere otherwise. Publishing never blocks a session;
// failures are logged by the caller and dropped.
package events
