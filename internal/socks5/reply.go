package socks5

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	txsocks5 "github.com/txthinking/socks5"
)

// WriteReply answers a request with code. bound is the address the server
// connected from; nil sends the all-zero IPv4 address.
func WriteReply(conn net.Conn, code byte, bound net.Addr) error {
	atyp, host, port := txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}
	if bound != nil {
		var err error
		atyp, host, port, err = txsocks5.ParseAddress(bound.String())
		if err != nil {
			return fmt.Errorf("socks5 bound address %q: %w", bound, err)
		}
		if atyp == txsocks5.ATYPDomain {
			host = host[1:]
		}
	}
	if _, err := txsocks5.NewReply(code, atyp, host, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 reply: %w", err)
	}
	return nil
}

// DialFailureCode picks the reply code describing a failed outbound dial.
func DialFailureCode(err error) byte {
	var re *ReplyError
	switch {
	case errors.As(err, &re):
		// An upstream SOCKS5 server already said why.
		return re.Code
	case errors.Is(err, syscall.ECONNREFUSED):
		return txsocks5.RepConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return txsocks5.RepNetworkUnreachable
	}
	return txsocks5.RepHostUnreachable
}
