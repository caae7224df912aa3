package socks5

import (
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate performs the server side of method negotiation,
// requiring username/password when auth is set.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	m := auth.method()
	if !slices.Contains(neg.Methods, m) {
		writeNoAcceptableMethods(conn)
		return fmt.Errorf("client does not offer method %#x", m)
	}
	if _, err := txsocks5.NewNegotiationReply(m).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	if !auth.enabled() {
		return nil
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if !auth.accepts(urq.Uname, urq.Passwd) {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return errors.New("auth failed")
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	return nil
}

// ServerReadRequest reads the client's command request.
func ServerReadRequest(conn net.Conn) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

func writeNoAcceptableMethods(conn net.Conn) {
	_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
}
