// Package session is the process-wide table of terminal sessions.
//
// A session owns a private workspace directory below the project root and,
// once started, at most one sandbox and one shell. The registry is the only
// place sessions are created, started and destroyed:
//
//	s, _ := registry.GetOrCreate(requestedID)
//	mode, detach, _ := registry.Start(ctx, s, session.Subscriber{OnData: send})
//	defer registry.Destroy(s.ID)
//	defer detach()
//
// Destroy tears a session down in reverse order of creation (shell, sandbox,
// workspace, registry entry). It is idempotent and safe to call from any
// number of goroutines; shell exit and connection close both end up there.
package session
