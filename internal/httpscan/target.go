package httpscan

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTarget is returned for a request target that is neither an
	// absolute URL nor host:port.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrUnsupportedScheme is returned for an absolute URL whose scheme is not
	// http.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

const httpPrefix = "http://"

// Target is where a proxied request should be sent.
type Target struct {
	Host string
	Port string

	// PlainHTTP is set for absolute http:// targets, and clear for the
	// host:port form used by CONNECT.
	PlainHTTP bool
}

// Address returns the host:port to dial.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, t.Port)
}

// ParseTarget resolves a request-line target.
//
// Two forms are recognized:
//   - http://host[:port]/path, giving PlainHTTP with port 80 unless one is
//     given; the path is required
//   - host:port, the CONNECT form
//
// Any other scheme yields ErrUnsupportedScheme; anything else yields
// ErrInvalidTarget.
func ParseTarget(target string) (Target, error) {
	if scheme, _, ok := strings.Cut(target, "://"); ok {
		if !strings.HasPrefix(target, httpPrefix) {
			return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
		}
		authority, _, ok := strings.Cut(target[len(httpPrefix):], "/")
		if !ok || authority == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
		host, port := authority, "80"
		if strings.LastIndexByte(authority, ':') > strings.LastIndexByte(authority, ']') {
			h, p, err := splitHostPort(authority)
			if err != nil {
				return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
			}
			host, port = h, p
		} else {
			host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		}
		return Target{Host: host, Port: port, PlainHTTP: true}, nil
	}

	host, port, err := splitHostPort(target)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return Target{Host: host, Port: port}, nil
}

func splitHostPort(s string) (string, string, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", "", err
	}
	if host == "" {
		return "", "", errors.New("missing host")
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || n == 0 {
		return "", "", errors.New("bad port")
	}
	return host, strconv.FormatUint(n, 10), nil
}
