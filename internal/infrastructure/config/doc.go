// Package config loads server configuration from environment variables.
//
// Every field has an envconfig tag and a default, so an empty environment
// yields a working development server with sandboxing disabled. cmd/server
// layers command line flags on top of the loaded values.
package config
