// Package filter decides which command lines may reach a terminal session's
// shell.
//
// Keystrokes are assembled into lines by a LineBuffer, one per connection.
// Each complete line is evaluated against a Policy, an immutable deny list of
// regular expression rules plus protected path globs. Rules see both the raw
// line and a normalized form with quotes and backslashes removed, so c'd' ..
// is treated like cd ...
//
// A denied line never reaches the shell. Extra rules can be loaded from a
// YAML or TOML file with LoadPolicy; they extend the defaults.
package filter
