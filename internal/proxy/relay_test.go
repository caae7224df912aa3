package proxy

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/cacheproxy/internal/testutil"
)

// tcpPair returns the two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	a, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	b, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

var relayTransports = []struct {
	name string
	pair func(*testing.T) (net.Conn, net.Conn)
}{
	{name: "poll", pair: tcpPair},
	{name: "copy", pair: pipePair},
}

type relayResult struct {
	ended side
	err   error
	reply []byte
}

func startRelay(client, target net.Conn, capture bool) <-chan relayResult {
	done := make(chan relayResult, 1)
	go func() {
		if !capture {
			ended, err := relay(client, target, nil)
			done <- relayResult{ended: ended, err: err}
			return
		}
		var reply bytes.Buffer
		ended, err := relay(client, target, &reply)
		done <- relayResult{ended: ended, err: err, reply: reply.Bytes()}
	}()
	return done
}

func waitRelay(t *testing.T, done <-chan relayResult) relayResult {
	t.Helper()

	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish")
		return relayResult{}
	}
}

func TestRelayTargetCloses(t *testing.T) {
	t.Parallel()

	for _, tr := range relayTransports {
		t.Run(tr.name, func(t *testing.T) {
			t.Parallel()

			clientSide, clientConn := tr.pair(t)
			targetConn, targetSide := tr.pair(t)

			done := startRelay(clientConn, targetConn, true)

			testutil.AssertEcho(t, clientSide, targetSide, []byte("request bytes"))
			testutil.AssertEcho(t, targetSide, clientSide, []byte("reply part 1;"))
			testutil.AssertEcho(t, targetSide, clientSide, []byte("reply part 2"))

			_ = targetSide.Close()

			res := waitRelay(t, done)
			if res.err != nil {
				t.Fatalf("Relay: %v", res.err)
			}
			if res.ended != sideTarget {
				t.Fatalf("ended by side %d, want target", res.ended)
			}
			if got, want := string(res.reply), "reply part 1;reply part 2"; got != want {
				t.Fatalf("reply = %q, want %q", got, want)
			}
		})
	}
}

func TestRelayClientCloses(t *testing.T) {
	t.Parallel()

	for _, tr := range relayTransports {
		t.Run(tr.name, func(t *testing.T) {
			t.Parallel()

			clientSide, clientConn := tr.pair(t)
			targetConn, targetSide := tr.pair(t)

			done := startRelay(clientConn, targetConn, false)

			testutil.AssertEcho(t, clientSide, targetSide, []byte("x"))
			_ = clientSide.Close()

			res := waitRelay(t, done)
			if res.err != nil {
				t.Fatalf("Relay: %v", res.err)
			}
			if res.ended != sideClient {
				t.Fatalf("ended by side %d, want client", res.ended)
			}
		})
	}
}

func TestRelayBothReady(t *testing.T) {
	t.Parallel()

	clientSide, clientConn := tcpPair(t)
	targetConn, targetSide := tcpPair(t)

	// Queue data in both directions before the relay starts so the first
	// wait reports both sides ready.
	if _, err := clientSide.Write([]byte("up")); err != nil {
		t.Fatal(err)
	}
	if _, err := targetSide.Write([]byte("down")); err != nil {
		t.Fatal(err)
	}

	done := startRelay(clientConn, targetConn, true)

	buf := make([]byte, 4)
	if _, err := io.ReadFull(clientSide, buf); err != nil || string(buf) != "down" {
		t.Fatalf("client got %q, %v", buf, err)
	}
	if _, err := io.ReadFull(targetSide, buf[:2]); err != nil || string(buf[:2]) != "up" {
		t.Fatalf("target got %q, %v", buf[:2], err)
	}

	_ = targetSide.Close()
	res := waitRelay(t, done)
	if res.err != nil {
		t.Fatalf("Relay: %v", res.err)
	}
	if string(res.reply) != "down" {
		t.Fatalf("reply = %q", res.reply)
	}
}

func TestRelayLargeTransfer(t *testing.T) {
	t.Parallel()

	for _, tr := range relayTransports {
		t.Run(tr.name, func(t *testing.T) {
			t.Parallel()

			clientSide, clientConn := tr.pair(t)
			targetConn, targetSide := tr.pair(t)

			done := startRelay(clientConn, targetConn, true)

			payload := bytes.Repeat([]byte("0123456789abcdef"), 64<<10)
			go func() {
				_, _ = targetSide.Write(payload)
				_ = targetSide.Close()
			}()

			got, err := io.ReadAll(io.LimitReader(clientSide, int64(len(payload))))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("client received %d bytes, want %d", len(got), len(payload))
			}

			res := waitRelay(t, done)
			if res.err != nil {
				t.Fatalf("Relay: %v", res.err)
			}
			if !bytes.Equal(res.reply, payload) {
				t.Fatalf("reply has %d bytes, want %d", len(res.reply), len(payload))
			}
		})
	}
}

func TestCopyRelayLeavesConnsOpen(t *testing.T) {
	t.Parallel()

	clientSide, clientConn := pipePair(t)
	targetConn, targetSide := pipePair(t)

	done := startRelay(clientConn, targetConn, false)
	_ = targetSide.Close()
	if res := waitRelay(t, done); res.err != nil {
		t.Fatalf("Relay: %v", res.err)
	}

	// Only the deadlines were expired; the conn still belongs to its owner.
	if err := clientConn.SetDeadline(time.Time{}); err != nil {
		t.Fatal(err)
	}
	werr := make(chan error, 1)
	go func() {
		_, err := clientConn.Write([]byte("still open"))
		werr <- err
	}()
	buf := make([]byte, len("still open"))
	if _, err := io.ReadFull(clientSide, buf); err != nil {
		t.Fatal(err)
	}
	if err := <-werr; err != nil {
		t.Fatalf("Write after relay: %v", err)
	}
}
