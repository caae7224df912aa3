package proxy

import (
	"github.com/rs/zerolog"

	"github.com/die-net/cacheproxy/internal/cache"
	"github.com/die-net/cacheproxy/internal/dialer"
	"github.com/die-net/cacheproxy/internal/socks5"
)

type Config struct {
	// Dialer opens target connections. It may chain through an upstream
	// proxy.
	Dialer dialer.Dialer

	// Cache holds replies to plain-HTTP GET requests. Nil disables caching.
	Cache *cache.Store

	Logger zerolog.Logger

	// SOCKS5Auth, if Username is set, requires SOCKS5 clients to
	// authenticate.
	SOCKS5Auth socks5.Auth
}
