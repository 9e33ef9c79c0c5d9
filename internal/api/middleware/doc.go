// Package middleware provides the HTTP middleware of the terminal service.
//
//   - CORS: cross-origin access to the admin API
//   - RateLimit: per-IP token buckets, applied to the terminal upgrade and
//     the admin API; idle clients are forgotten after IdleTTL
//   - AdminAuth: bearer token check in front of the admin API
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.CORSConfigFor(origins)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
