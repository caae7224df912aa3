package proxy

import (
	"io"
	"net"
	"syscall"
)

// Relay copies bytes between client and target until either side closes,
// which ends the whole relay. Everything written to client is also written
// to reply when reply is non-nil.
//
// When both conns expose OS descriptors, a single goroutine waits for read
// readiness on exactly those two descriptors and services every ready side
// before waiting again. Otherwise one copier runs per direction.
//
// Relay returns nil when a side closed in an orderly way. Closing the conns
// is left to the caller, except that the per-direction copiers close a conn
// that cannot take a deadline to wake its blocked copier.
func Relay(client, target net.Conn, reply io.Writer) error {
	_, err := relay(client, target, reply)
	return err
}

// side names the end of a relay that finished it.
type side int

const (
	sideClient side = iota + 1
	sideTarget
)

func relay(client, target net.Conn, reply io.Writer) (side, error) {
	if canPoll {
		cs, ok1 := client.(syscall.Conn)
		ts, ok2 := target.(syscall.Conn)
		if ok1 && ok2 {
			crc, err1 := cs.SyscallConn()
			trc, err2 := ts.SyscallConn()
			if err1 == nil && err2 == nil {
				return pollRelay(client, target, crc, trc, reply)
			}
		}
	}
	return copyRelay(client, target, reply)
}

// pump moves one read's worth of bytes from src to dst. It reports done
// when src has closed or a read or write failed.
func pump(dst, src net.Conn, reply io.Writer, buf []byte) (done bool, err error) {
	n, err := src.Read(buf)
	if n > 0 {
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return true, werr
		}
		if reply != nil {
			_, _ = reply.Write(buf[:n])
		}
	}
	switch {
	case err == io.EOF:
		return true, nil
	case err != nil:
		return true, err
	case n == 0:
		return true, nil
	}
	return false, nil
}
