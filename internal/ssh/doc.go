// Package ssh holds the SSH client pieces behind the ssh:// upstream:
// authentication sources (private key file or agent), known_hosts checking
// with trust on first use, and client handshake over an existing connection.
package ssh
