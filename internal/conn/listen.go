package conn

import (
	"fmt"
	"net"
)

// DefaultBacklog is the accept queue depth used when none is given.
const DefaultBacklog = 10

// ListenTCP listens on addr with address reuse enabled and the given accept
// backlog, and returns a net.Listener that applies keepAliveConfig to
// accepted TCP connections.
func ListenTCP(addr string, backlog int, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	ln, err := listen(addr, backlog)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return c, nil
}
