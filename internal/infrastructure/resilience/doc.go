/*
Package resilience provides a circuit breaker for calls to the container
runtime.

When the Docker daemon is down every provisioning attempt would otherwise
wait for its full timeout before the session falls back. The breaker opens
after repeated failures so new sessions fall back immediately, then lets a
single trial call through once Timeout has passed:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Usage:

	breaker := resilience.New("docker", resilience.Settings{Timeout: 30 * time.Second})
	err := breaker.Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx)
	})
*/
package resilience
