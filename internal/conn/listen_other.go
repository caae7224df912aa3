//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package conn

import (
	"context"
	"net"
)

// listen falls back to the standard library; the OS picks the backlog.
func listen(addr string, _ int) (net.Listener, error) {
	lc := net.ListenConfig{}
	return lc.Listen(context.Background(), "tcp", addr)
}
