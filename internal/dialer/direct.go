package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type directDialer struct {
	cfg      Config
	resolver *Resolver
}

// NewDirectDialer returns a Dialer that connects straight to the target.
// If cfg.DNSServer is set, host names are resolved by querying it.
func NewDirectDialer(cfg Config) (Dialer, error) {
	d := &directDialer{cfg: cfg}
	if cfg.DNSServer != "" {
		r, err := NewResolver(cfg.DNSServer, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		d.resolver = r
	}
	return d, nil
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.DialTimeout, KeepAliveConfig: d.cfg.KeepAlive}

	if d.resolver == nil {
		c, err := nd.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		return c, nil
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	// Try each address in turn, like the standard library does.
	var errs []error
	for _, a := range addrs {
		c, err := nd.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("dial %s %s: %w", network, address, errors.Join(errs...))
}
