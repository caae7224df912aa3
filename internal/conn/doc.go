// Package conn provides the proxy's listening sockets.
//
// Listeners are created with SO_REUSEADDR and an explicit accept backlog, and
// apply a TCP keepalive configuration to every accepted connection.
//
// On Linux, macOS and the BSDs the socket is built directly with
// golang.org/x/sys/unix so the backlog can be chosen. Elsewhere the standard
// library listener is used and the backlog is left to the OS.
package conn
