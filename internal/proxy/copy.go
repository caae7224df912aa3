package proxy

import (
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// expired is a deadline already in the past; setting it wakes any blocked
// Read or Write with os.ErrDeadlineExceeded.
var expired = time.Unix(1, 0)

// copyRelay is the relay used when either side has no OS descriptor to
// wait on. It runs one copier per direction. The first to finish expires
// both conns' deadlines, which ends the other. Conns that don't support
// deadlines, such as ssh channels, are closed instead; the caller's later
// Close of an already closed conn only returns an error that is ignored.
func copyRelay(client, target net.Conn, reply io.Writer) (side, error) {
	var ended atomic.Int32

	finish := func(s side, err error) error {
		if !ended.CompareAndSwap(0, int32(s)) {
			// Woken by the other copier.
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
		for _, c := range []net.Conn{client, target} {
			if c.SetDeadline(expired) != nil {
				_ = c.Close()
			}
		}
		return err
	}

	var g errgroup.Group

	g.Go(func() error {
		return finish(sideClient, copyChunks(target, client))
	})

	g.Go(func() error {
		w := io.Writer(client)
		if reply != nil {
			w = io.MultiWriter(client, reply)
		}
		return finish(sideTarget, copyChunks(w, target))
	})

	err := g.Wait()
	return side(ended.Load()), err
}

func copyChunks(dst io.Writer, src io.Reader) error {
	buf := getChunk()
	defer putChunk(buf)

	_, err := io.CopyBuffer(dst, onlyReader{src}, *buf)
	if isClosed(err) {
		return nil
	}
	return err
}

// onlyReader hides WriterTo so that io.CopyBuffer uses the pooled buffer.
type onlyReader struct {
	io.Reader
}

// isClosed reports whether err only says the conn was closed under us.
func isClosed(err error) bool {
	return err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
