package socks5

import (
	"crypto/subtle"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// CredentialStore validates username/password pairs. Implementations are
// shared by every session and must be safe for concurrent use.
type CredentialStore interface {
	Valid(user, password string) bool
}

// CredentialFunc adapts a predicate to a CredentialStore.
type CredentialFunc func(user, password string) bool

func (f CredentialFunc) Valid(user, password string) bool {
	return f(user, password)
}

// StaticCredentials maps usernames to passwords.
type StaticCredentials map[string]string

// Valid compares the password in constant time. The lookup by username is
// not constant time.
func (s StaticCredentials) Valid(user, password string) bool {
	want, ok := s[user]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// Authenticator runs the sub-negotiation for one authentication method.
type Authenticator interface {
	// Method is the method byte this authenticator answers to.
	Method() Method

	// Authenticate runs after the method selection has been written. It
	// returns the authenticated username, if the method has one.
	Authenticate(rw io.ReadWriter) (string, error)
}

// NoAuth accepts every client without further exchange.
type NoAuth struct{}

func (NoAuth) Method() Method { return MethodNoAuth }

func (NoAuth) Authenticate(io.ReadWriter) (string, error) { return "", nil }

// UserPass implements RFC 1929 username/password authentication.
type UserPass struct {
	Credentials CredentialStore
}

func (UserPass) Method() Method { return MethodUserPass }

// Authenticate reads the client's credentials and writes the status. On
// rejection the failure status is written and ErrAuthFailed returned.
//
//	+----+------+----------+------+----------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+----+------+----------+------+----------+
//	| 1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+----+------+----------+------+----------+
func (a UserPass) Authenticate(rw io.ReadWriter) (string, error) {
	user, pass, err := readUserPass(rw)
	if err != nil {
		return "", err
	}

	if a.Credentials == nil || !a.Credentials.Valid(user, pass) {
		_, _ = txsocks5.NewUserPassNegotiationReply(UserPassStatusFailure).WriteTo(rw)
		return user, ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(UserPassStatusSuccess).WriteTo(rw); err != nil {
		return user, fmt.Errorf("write userpass status: %w", err)
	}
	return user, nil
}

func readUserPass(r io.Reader) (string, string, error) {
	var buf [1 + MaxDomainLen]byte

	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return "", "", fmt.Errorf("read userpass header: %w", err)
	}
	if buf[0] != UserPassVersion {
		return "", "", fmt.Errorf("userpass: %w", UnsupportedVersionError(buf[0]))
	}

	ulen := int(buf[1])
	if _, err := io.ReadFull(r, buf[:ulen+1]); err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	user := string(buf[:ulen])

	plen := int(buf[ulen])
	if _, err := io.ReadFull(r, buf[:plen]); err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return user, string(buf[:plen]), nil
}
