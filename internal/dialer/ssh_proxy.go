package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	internalssh "github.com/die-net/cacheproxy/internal/ssh"
)

// SSHProxyDialer opens origin connections as "direct-tcpip" channels on a
// single shared SSH transport. The transport is dialed lazily and redialed
// once when a channel open fails for a reason other than the server
// refusing the destination.
type SSHProxyDialer struct {
	sshAddr   string
	cred      internalssh.Credentials
	hostKeys  ssh.HostKeyCallback
	handshake time.Duration
	direct    Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHProxyDialer returns a dialer tunnelling through the SSH server at
// sshAddr. At least one of password or cfg.SSHKeyPath (or a running agent)
// must supply credentials. An empty cfg.SSHKnownHostsPath disables host
// key checking.
func NewSSHProxyDialer(cfg Config, sshAddr, username, password string) (*SSHProxyDialer, error) {
	if sshAddr == "" {
		return nil, errors.New("ssh dialer: missing ssh address")
	}
	if username == "" {
		return nil, errors.New("ssh dialer: missing username")
	}

	signers, err := internalssh.Signers(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}
	if password == "" && len(signers) == 0 {
		return nil, errors.New("ssh dialer: missing password or key")
	}

	hostKeyCallback, err := internalssh.NewHostKeyCallback(cfg.SSHKnownHostsPath, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SSHProxyDialer{
		sshAddr:   sshAddr,
		cred:      internalssh.Credentials{User: username, Password: password, Keys: signers},
		hostKeys:  hostKeyCallback,
		handshake: cfg.NegotiationTimeout,
		direct:    direct,
	}, nil
}

// DialContext opens a channel to address. Canceling ctx closes only the
// returned channel.
func (d *SSHProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh upstream dial %s %s: unsupported network", network, address)
	}

	client, err := d.getClient(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		// The server refused this destination; the transport is fine.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) {
			return nil, fmt.Errorf("ssh upstream dial %s: %w", address, err)
		}

		d.invalidateClient()
		client, err2 := d.getClient(ctx)
		if err2 != nil {
			return nil, errors.Join(err, err2)
		}
		ch, err = client.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("ssh upstream dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ch.Close()
	})
	return &sshChannelConn{Conn: ch, stop: stop}, nil
}

// getClient returns the shared transport, dialing it if needed. Concurrent
// callers share one dial; a caller whose ctx ends stops waiting but the dial
// continues for the others.
func (d *SSHProxyDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := d.sf.DoChan("connect", func() (any, error) {
		d.mu.Lock()
		if c := d.client; c != nil {
			d.mu.Unlock()
			return c, nil
		}
		d.mu.Unlock()

		c, err := d.dialSSH(context.Background())
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.client = c
		d.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (d *SSHProxyDialer) dialSSH(ctx context.Context) (*ssh.Client, error) {
	conn, err := d.direct.DialContext(ctx, "tcp", d.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport dial: %w", err)
	}

	client, err := internalssh.Handshake(conn, d.sshAddr, d.cred, d.hostKeys, d.handshake)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}
	return client, nil
}

func (d *SSHProxyDialer) invalidateClient() {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
}

// Close tears down the shared transport, if any.
func (d *SSHProxyDialer) Close() error {
	d.invalidateClient()
	return nil
}

type sshChannelConn struct {
	net.Conn
	stop func() bool
}

func (c *sshChannelConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
