package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up host addresses by querying a single DNS server.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns a Resolver that sends UDP queries to server
// (host:port; port 53 if omitted). A zero timeout uses the library default.
func NewResolver(server string, timeout time.Duration) (*Resolver, error) {
	if server == "" {
		return nil, errors.New("dns resolver: missing server")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// LookupHost returns the IPv4 then IPv6 addresses of host. An IP literal is
// returned as-is without a query.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	var (
		addrs []string
		errs  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		got, err := r.query(ctx, host, qtype)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		addrs = append(addrs, got...)
	}
	if len(addrs) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("lookup %s: %w", host, err)
		}
		return nil, fmt.Errorf("lookup %s: no addresses", host)
	}
	return addrs, nil
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", dns.TypeToString[qtype], err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query: %s", dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}

	var addrs []string
	for _, rr := range resp.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			addrs = append(addrs, rr.A.String())
		case *dns.AAAA:
			addrs = append(addrs, rr.AAAA.String())
		}
	}
	return addrs, nil
}
