package socks5

import (
	"crypto/subtle"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth is an optional username/password pair. The zero value means no
// authentication.
type Auth struct {
	Username string
	Password string
}

func (a Auth) enabled() bool {
	return a.Username != ""
}

// method is the negotiation method a server with a uses, or a client with
// a prefers.
func (a Auth) method() byte {
	if a.enabled() {
		return txsocks5.MethodUsernamePassword
	}
	return txsocks5.MethodNone
}

func (a Auth) accepts(user, pass []byte) bool {
	u := subtle.ConstantTimeCompare(user, []byte(a.Username))
	p := subtle.ConstantTimeCompare(pass, []byte(a.Password))
	return u&p == 1
}
