package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Server accepts client connections and runs one session per connection.
// The HTTP and SOCKS5 front doors share its session id counter.
type Server struct {
	ctx context.Context
	cfg Config

	lastID atomic.Uint64
}

// NewServer returns a Server. ctx bounds outbound dials.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg}
}

// Serve runs HTTP/CONNECT sessions for connections accepted on ln until ln
// is closed. A closed listener is a clean return.
func (s *Server) Serve(ln net.Listener) error {
	return s.serve(ln, s.handleHTTP)
}

// ServeSOCKS5 runs SOCKS5 CONNECT sessions for connections accepted on ln
// until ln is closed.
func (s *Server) ServeSOCKS5(ln net.Listener) error {
	return s.serve(ln, s.handleSOCKS5)
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

func (s *Server) serve(ln net.Listener, handle func(*session) error) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !isTemporaryAcceptError(err) {
				return fmt.Errorf("accept: %w", err)
			}
			backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
			s.cfg.Logger.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			t := time.NewTimer(backoff)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
			}
			continue
		}
		backoff = 0
		go s.run(c, handle)
	}
}

// isTemporaryAcceptError reports whether Accept may succeed if retried,
// such as when the process is out of descriptors or a pending connection
// was reset before it could be accepted.
func isTemporaryAcceptError(err error) bool {
	for _, errno := range []syscall.Errno{
		syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM,
		syscall.ECONNABORTED, syscall.ECONNRESET, syscall.EINTR,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// run owns c for the life of the session. Nothing a session does, including
// a panic, reaches the accept loop.
func (s *Server) run(c net.Conn, handle func(*session) error) {
	sess := &session{
		id:     s.lastID.Add(1),
		client: c,
		start:  time.Now(),
	}
	sess.log = s.cfg.Logger.With().
		Uint64("session", sess.id).
		Stringer("client", c.RemoteAddr()).
		Logger()

	defer func() {
		_ = c.Close()
		if r := recover(); r != nil {
			sess.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("session panicked")
		}
	}()

	sess.log.Debug().Msg("new connection")

	err := handle(sess)
	sess.finish(err)
}

type session struct {
	id     uint64
	client net.Conn
	start  time.Time
	log    zerolog.Logger
}

func (s *session) finish(err error) {
	var ev *zerolog.Event
	switch {
	case err == nil:
		ev = s.log.Info()
	case isConnReset(err):
		ev = s.log.Debug().Err(err)
	default:
		ev = s.log.Warn().Err(err)
	}
	ev.Dur("duration", time.Since(s.start)).Msg("connection closed")
}
