package socks5

import (
	"fmt"
	"io"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate reads the client's method offer and selects the first
// authenticator in auths whose method the client offered. The order of auths
// is the server's preference.
//
//	+----+----------+----------+
//	|VER | NMETHODS | METHODS  |
//	+----+----------+----------+
//	| 1  |    1     | 1 to 255 |
//	+----+----------+----------+
//
// A wrong version aborts without a reply. When nothing matches, an empty
// offer included, X'FF' is written and ErrNoAcceptableMethod returned;
// nothing more is read.
func ServerNegotiate(rw io.ReadWriter, auths []Authenticator) (Authenticator, error) {
	methods, err := readMethods(rw)
	if err != nil {
		return nil, err
	}

	for _, a := range auths {
		if slices.Contains(methods, a.Method()) {
			if _, err := txsocks5.NewNegotiationReply(byte(a.Method())).WriteTo(rw); err != nil {
				return nil, fmt.Errorf("negotiation reply: %w", err)
			}
			return a, nil
		}
	}

	writeNoAcceptableMethods(rw)
	return nil, fmt.Errorf("%w: offered %v", ErrNoAcceptableMethod, methods)
}

// ServerHandshake negotiates a method and runs its sub-negotiation. It
// returns the selected method and the authenticated username, if any.
func ServerHandshake(rw io.ReadWriter, auths []Authenticator) (Method, string, error) {
	a, err := ServerNegotiate(rw, auths)
	if err != nil {
		return MethodNoAcceptable, "", err
	}
	user, err := a.Authenticate(rw)
	if err != nil {
		return a.Method(), user, err
	}
	return a.Method(), user, nil
}

func readMethods(r io.Reader) ([]Method, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read negotiation header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("negotiation: %w", UnsupportedVersionError(hdr[0]))
	}

	raw := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read methods: %w", err)
	}

	methods := make([]Method, len(raw))
	for i, m := range raw {
		methods[i] = Method(m)
	}
	return methods, nil
}

func writeNoAcceptableMethods(w io.Writer) {
	// RFC 1928: 0xFF indicates no acceptable methods.
	_, _ = txsocks5.NewNegotiationReply(byte(MethodNoAcceptable)).WriteTo(w)
}
