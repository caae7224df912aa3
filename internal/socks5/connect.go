package socks5

import (
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyError is a SOCKS5 server's refusal of a CONNECT request.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	switch e.Code {
	case txsocks5.RepServerFailure:
		return "socks5: general server failure"
	case txsocks5.RepNotAllowed:
		return "socks5: connection not allowed by ruleset"
	case txsocks5.RepNetworkUnreachable:
		return "socks5: network unreachable"
	case txsocks5.RepHostUnreachable:
		return "socks5: host unreachable"
	case txsocks5.RepConnectionRefused:
		return "socks5: connection refused"
	case txsocks5.RepTTLExpired:
		return "socks5: TTL expired"
	case txsocks5.RepCommandNotSupported:
		return "socks5: command not supported"
	case txsocks5.RepAddressNotSupported:
		return "socks5: address type not supported"
	}
	return fmt.Sprintf("socks5: reply code %#x", e.Code)
}

var errAuthRejected = errors.New("socks5: username/password rejected")

// Connect runs the client side of a SOCKS5 exchange on conn, asking the
// server to CONNECT to address. The server's refusal is a *ReplyError.
// conn carries the tunnel once Connect returns nil.
func Connect(conn net.Conn, auth Auth, address string) error {
	// A client with credentials still lets the server pick no-auth.
	methods := []byte{txsocks5.MethodNone}
	if auth.enabled() {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 greeting: %w", err)
	}
	chosen, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 greeting reply: %w", err)
	}

	switch {
	case chosen.Method == txsocks5.MethodNone:
	case chosen.Method == txsocks5.MethodUsernamePassword && auth.enabled():
		if err := sendCredentials(conn, auth); err != nil {
			return err
		}
	default:
		return fmt.Errorf("socks5: server chose unusable method %#x", chosen.Method)
	}

	atyp, host, port, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("socks5 target %q: %w", address, err)
	}
	if atyp == txsocks5.ATYPDomain {
		// ParseAddress length-prefixes domains; NewRequest adds its own.
		host = host[1:]
	}
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, host, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 connect: %w", err)
	}
	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 connect reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return &ReplyError{Code: rep.Rep}
	}
	return nil
}

func sendCredentials(conn net.Conn, auth Auth) error {
	req := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password))
	if _, err := req.WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 credentials: %w", err)
	}
	rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 credentials reply: %w", err)
	}
	if rep.Status != txsocks5.UserPassStatusSuccess {
		return errAuthRejected
	}
	return nil
}
