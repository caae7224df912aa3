package proxy

import (
	"fmt"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/cacheproxy/internal/socks5"
)

// handleSOCKS5 runs one SOCKS5 CONNECT session. SOCKS5 traffic is opaque to
// the proxy and is never cached.
func (s *Server) handleSOCKS5(sess *session) error {
	if err := socks5.ServerNegotiate(sess.client, s.cfg.SOCKS5Auth); err != nil {
		return err
	}

	req, err := socks5.ServerReadRequest(sess.client)
	if err != nil {
		return err
	}
	target := req.Address()
	sess.log = sess.log.With().Str("method", "SOCKS5").Str("target", target).Logger()

	if req.Cmd != txsocks5.CmdConnect {
		_ = socks5.WriteReply(sess.client, txsocks5.RepCommandNotSupported, nil)
		return fmt.Errorf("unsupported command %#x", req.Cmd)
	}

	up, err := s.cfg.Dialer.DialContext(s.ctx, "tcp", target)
	if err != nil {
		_ = socks5.WriteReply(sess.client, socks5.DialFailureCode(err), nil)
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer up.Close()
	sess.log.Debug().Stringer("upstream", up.RemoteAddr()).Msg("dialed")

	if err := socks5.WriteReply(sess.client, txsocks5.RepSuccess, up.LocalAddr()); err != nil {
		return err
	}

	if err := Relay(sess.client, up, nil); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}
