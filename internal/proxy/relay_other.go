//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package proxy

import (
	"io"
	"net"
	"syscall"
)

const canPoll = false

func pollRelay(client, target net.Conn, _, _ syscall.RawConn, reply io.Writer) (side, error) {
	return copyRelay(client, target, reply)
}
