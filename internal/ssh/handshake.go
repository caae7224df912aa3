package ssh

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// Credentials authenticate one user to an SSH server. Keys are offered
// before Password.
type Credentials struct {
	User     string
	Password string
	Keys     []ssh.Signer
}

func (c Credentials) methods() []ssh.AuthMethod {
	methods := make([]ssh.AuthMethod, 0, 2)
	if len(c.Keys) > 0 {
		methods = append(methods, ssh.PublicKeys(c.Keys...))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	return methods
}

// Handshake turns conn into an SSH client transport to the server at addr,
// which hostKeys must accept. A nonzero timeout bounds the whole exchange.
// conn is closed if the handshake fails.
func Handshake(conn net.Conn, addr string, cred Credentials, hostKeys ssh.HostKeyCallback, timeout time.Duration) (*ssh.Client, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cred.User,
		Auth:            cred.methods(),
		HostKeyCallback: hostKeys,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	// The transport lives on past the handshake.
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sc, chans, reqs), nil
}
