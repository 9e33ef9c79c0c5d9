// Package bridge connects one client connection to one terminal session.
//
// A Bridge moves through CONNECTING, PROVISIONING, STREAMING, CLOSING and
// CLOSED. Inbound frames are decoded once into resize or data frames. Data
// is assembled into lines, echoed locally and checked against the command
// filter before anything reaches the shell. Shell output goes back as text
// frames in read order.
//
// Whichever side ends first, the bridge destroys its session exactly once
// before Run returns.
package bridge
