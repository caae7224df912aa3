// Package proxy implements the caching HTTP/CONNECT forward proxy.
//
// Each accepted connection runs as an independent session: one request is
// read and parsed, a cached reply is served if there is one, and otherwise
// the target is dialed and bytes are relayed in both directions until either
// side closes. Replies to plain-HTTP GET requests are then offered to the
// shared cache. An optional SOCKS5 front door shares the same relay and is
// never cached.
package proxy
