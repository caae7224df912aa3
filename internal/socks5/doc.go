// Package socks5 is a thin layer over github.com/txthinking/socks5 holding
// the SOCKS5 handshakes the proxy needs: the client side used to dial
// through an upstream SOCKS5 proxy, and the server side of the SOCKS5
// listener. Only CONNECT is supported.
package socks5
