package testutil

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/die-net/cacheproxy/internal/httpscan"
)

// StartSingleAcceptServer accepts one connection and hands it to handler.
// The returned func closes the listener and waits for handler to return.
func StartSingleAcceptServer(ctx context.Context, t *testing.T, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	ln := listenLoopback(ctx, t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}()

	return ln, func() {
		_ = ln.Close()
		wg.Wait()
	}
}

// Origin is a minimal HTTP origin. Each connection gets one request read
// with httpscan.ReceiveMessage, then Response, then a close. A holding
// origin keeps the connection open after Response until the peer closes.
type Origin struct {
	net.Listener

	Response []byte

	hold    bool
	accepts atomic.Int64
	closed  atomic.Int64

	mu       sync.Mutex
	requests [][]byte
}

// StartOrigin serves response to every connection until ctx ends.
func StartOrigin(ctx context.Context, t *testing.T, response []byte) *Origin {
	t.Helper()
	return startOrigin(ctx, t, response, false)
}

// StartHoldingOrigin is StartOrigin for an origin that stalls after
// writing response instead of closing.
func StartHoldingOrigin(ctx context.Context, t *testing.T, response []byte) *Origin {
	t.Helper()
	return startOrigin(ctx, t, response, true)
}

func startOrigin(ctx context.Context, t *testing.T, response []byte, hold bool) *Origin {
	t.Helper()

	o := &Origin{Listener: listenLoopback(ctx, t), Response: response, hold: hold}
	go func() {
		for {
			c, err := o.Accept()
			if err != nil {
				return
			}
			o.accepts.Add(1)
			go o.serve(c)
		}
	}()
	return o
}

func (o *Origin) serve(c net.Conn) {
	defer o.closed.Add(1)
	defer c.Close()

	req, err := httpscan.ReceiveMessage(c)
	if err != nil || len(req) == 0 {
		return
	}

	o.mu.Lock()
	o.requests = append(o.requests, req)
	o.mu.Unlock()

	if _, err := c.Write(o.Response); err != nil || !o.hold {
		return
	}
	_, _ = io.Copy(io.Discard, c)
}

// Accepts reports how many connections the origin has accepted.
func (o *Origin) Accepts() int64 {
	return o.accepts.Load()
}

// Closed reports how many connections the origin has finished with.
func (o *Origin) Closed() int64 {
	return o.closed.Load()
}

// Requests returns a copy of the request messages received so far.
func (o *Origin) Requests() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.requests...)
}
