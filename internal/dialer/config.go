package dialer

import (
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Config carries the settings shared by every upstream dialer.
type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// DNSServer is a host:port queried for direct dials instead of the
	// system resolver. Empty uses the system resolver.
	DNSServer string

	SSHKeyPath        string
	SSHKnownHostsPath string

	Logger zerolog.Logger
}
