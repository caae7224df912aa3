// Package dialer opens the proxy's outbound connections.
//
// Every session reaches its target through a Dialer. The target may be dialed
// directly (optionally resolving names through a specific DNS server), or
// through an upstream HTTP CONNECT, SOCKS5 or SSH proxy selected by URL.
package dialer
