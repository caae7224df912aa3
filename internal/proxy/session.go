package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/die-net/cacheproxy/internal/httpscan"
)

// connectReply is sent to a CONNECT client once the target is dialed.
const connectReply = "HTTP/1.1 200 OK\r\n\r\n"

var errNoRequest = errors.New("client closed before sending a request")

// handleHTTP runs one HTTP/CONNECT session: read and parse the request,
// answer from the cache if possible, otherwise dial the target and relay,
// then offer a cacheable reply to the cache.
func (s *Server) handleHTTP(sess *session) error {
	msg, err := httpscan.ReceiveMessage(sess.client)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(msg) == 0 {
		return errNoRequest
	}

	method, target := httpscan.RequestLine(msg)
	sess.log = sess.log.With().Str("method", method).Str("target", target).Logger()

	t, err := httpscan.ParseTarget(target)
	if err != nil {
		return err
	}
	cacheable := s.cfg.Cache != nil && method == "GET" && t.PlainHTTP

	if cacheable {
		if resp, ok := s.cfg.Cache.Lookup(target); ok {
			sess.log.Info().Int("bytes", len(resp)).Msg("cache hit")
			if _, err := sess.client.Write(resp); err != nil {
				return fmt.Errorf("write cached reply: %w", err)
			}
			return nil
		}
	}

	up, err := s.cfg.Dialer.DialContext(s.ctx, "tcp", t.Address())
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.Address(), err)
	}
	defer up.Close()
	sess.log.Debug().Stringer("upstream", up.RemoteAddr()).Msg("dialed")

	if method == "CONNECT" {
		if _, err := io.WriteString(sess.client, connectReply); err != nil {
			return fmt.Errorf("write connect reply: %w", err)
		}
		// Bytes the client sent right behind the CONNECT header belong to
		// the tunnel.
		if n := httpscan.HeaderLength(msg); n >= 0 && n < len(msg) {
			if _, err := up.Write(msg[n:]); err != nil {
				return fmt.Errorf("forward tunnel bytes: %w", err)
			}
		}
	} else if _, err := up.Write(msg); err != nil {
		return fmt.Errorf("forward request: %w", err)
	}

	if !cacheable {
		if err := Relay(sess.client, up, nil); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	}

	var reply bytes.Buffer
	ended, err := relay(sess.client, up, &reply)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if reply.Len() == 0 {
		return nil
	}
	// A client that hangs up mid-reply leaves a truncated message behind.
	if ended == sideClient && !httpscan.Complete(reply.Bytes()) {
		sess.log.Debug().Int("bytes", reply.Len()).Msg("incomplete response not cached")
		return nil
	}
	if s.cfg.Cache.Insert(target, reply.Bytes()) {
		sess.log.Info().Int("bytes", reply.Len()).Msg("caching response")
	} else {
		sess.log.Debug().Msg("response already cached")
	}
	return nil
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
