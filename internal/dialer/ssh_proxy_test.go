package dialer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/cacheproxy/internal/testutil"
)

// sshForwarder is an SSH server that honors direct-tcpip channel requests
// by dialing the requested address.
type sshForwarder struct {
	net.Listener
	transports atomic.Int64
}

func startSSHForwarder(ctx context.Context, t *testing.T, username, password string) *sshForwarder {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostKey, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(hostKey)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	t.Cleanup(func() {
		stop()
		_ = ln.Close()
	})

	f := &sshForwarder{Listener: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			f.transports.Add(1)
			go f.serve(ctx, c, cfg)
		}
	}()
	return f
}

func (f *sshForwarder) serve(ctx context.Context, c net.Conn, cfg *ssh.ServerConfig) {
	defer c.Close()

	_, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "direct-tcpip" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel")
			continue
		}

		// RFC 4254 section 7.2.
		var p struct {
			Host       string
			Port       uint32
			OriginHost string
			OriginPort uint32
		}
		if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
			_ = newChan.Reject(ssh.Prohibited, "bad direct-tcpip payload")
			continue
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))))
		if err != nil {
			_ = newChan.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}

		ch, chReqs, err := newChan.Accept()
		if err != nil {
			_ = dst.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)

		go func() {
			defer ch.Close()
			defer dst.Close()

			var g errgroup.Group
			g.Go(func() error {
				_, err := io.Copy(dst, ch)
				_ = dst.Close()
				return err
			})
			g.Go(func() error {
				_, err := io.Copy(ch, dst)
				_ = ch.CloseWrite()
				return err
			})
			_ = g.Wait()
		}()
	}
}

func newTestSSHDialer(t *testing.T, addr string) *SSHProxyDialer {
	t.Helper()

	d, err := NewSSHProxyDialer(Config{DialTimeout: 2 * time.Second, NegotiationTimeout: 2 * time.Second}, addr, "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSSHProxyDialerSharesTransport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo1 := testutil.StartEchoTCPServer(ctx, t)
	echo2 := testutil.StartEchoTCPServer(ctx, t)
	fwd := startSSHForwarder(ctx, t, "user", "pass")
	d := newTestSSHDialer(t, fwd.Addr().String())

	c1, err := d.DialContext(ctx, "tcp", echo1.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c1, c1, []byte("hello"))
	_ = c1.Close()

	c2, err := d.DialContext(ctx, "tcp", echo2.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	testutil.AssertEcho(t, c2, c2, []byte("hello2"))

	if n := fwd.transports.Load(); n != 1 {
		t.Fatalf("opened %d ssh transports, want 1", n)
	}
}

func TestSSHProxyDialerRefusedDestination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closedAddr := ln.Addr().String()
	_ = ln.Close()

	echo := testutil.StartEchoTCPServer(ctx, t)
	fwd := startSSHForwarder(ctx, t, "user", "pass")
	d := newTestSSHDialer(t, fwd.Addr().String())

	_, err = d.DialContext(ctx, "tcp", closedAddr)
	var openErr *ssh.OpenChannelError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenChannelError, got %v", err)
	}

	// A refused channel leaves the transport usable.
	c, err := d.DialContext(ctx, "tcp", echo.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testutil.AssertEcho(t, c, c, []byte("still up"))

	if n := fwd.transports.Load(); n != 1 {
		t.Fatalf("opened %d ssh transports, want 1", n)
	}
}

func TestSSHProxyDialerBadPassword(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fwd := startSSHForwarder(ctx, t, "user", "other")
	d := newTestSSHDialer(t, fwd.Addr().String())

	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected authentication error")
	}
	if _, err := d.DialContext(ctx, "udp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected unsupported network error")
	}
}
