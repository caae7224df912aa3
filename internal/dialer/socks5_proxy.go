package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/die-net/cacheproxy/internal/socks5"
)

// SOCKS5ProxyDialer reaches targets through an upstream SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

// NewSOCKS5ProxyDialer returns a dialer using the SOCKS5 proxy at
// proxyAddr, authenticating with username/password if username is set.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) (*SOCKS5ProxyDialer, error) {
	if proxyAddr == "" {
		return nil, errors.New("socks5 proxy dialer: missing proxy address")
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    direct,
	}, nil
}

// DialContext connects to the proxy and negotiates a CONNECT to address.
// Canceling ctx during negotiation aborts it.
func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := d.direct.DialContext(ctx, network, d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Unix(1, 0))
	})

	err = socks5.Connect(c, d.auth, address)
	if !stop() || ctx.Err() != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, context.Cause(ctx))
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, err)
	}

	_ = c.SetDeadline(time.Time{})
	return c, nil
}
