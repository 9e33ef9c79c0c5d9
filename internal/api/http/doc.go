// Package http provides the admin HTTP handlers of the terminal service.
//
// Routes:
//
//	GET    /                       service banner
//	GET    /health                 registry and sandbox status
//	GET    /metrics/json           metrics snapshot
//
// Admin routes, mounted only when ADMIN_TOKEN is set and guarded by a
// bearer token:
//
//	GET    /admin/sessions         live sessions
//	GET    /admin/sessions/:id     one session
//	DELETE /admin/sessions/:id     forced teardown
package http
