package socks5

import (
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth configures optional username/password authentication for the client
// side of the negotiation.
type Auth struct {
	Username string
	Password string
}

// ClientDial negotiates on conn and issues a CONNECT for address.
func ClientDial(conn io.ReadWriter, auth Auth, address string) (Addr, error) {
	if err := ClientNegotiate(conn, auth); err != nil {
		return Addr{}, err
	}
	return ClientRequest(conn, CmdConnect, address)
}

// ClientNegotiate offers no-auth, plus username/password when auth carries a
// username, and runs the sub-negotiation the server picks.
func ClientNegotiate(conn io.ReadWriter, auth Auth) error {
	methods := []byte{byte(MethodNoAuth)}
	if auth.Username != "" {
		methods = append(methods, byte(MethodUserPass))
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch Method(neg.Method) {
	case MethodNoAuth:
		return nil
	case MethodUserPass:
		if auth.Username == "" {
			return errors.New("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	case MethodNoAcceptable:
		return ErrNoAcceptableMethod
	default:
		return fmt.Errorf("unsupported negotiation method: %s", Method(neg.Method))
	}
}

// ClientRequest sends a request for address and returns the bound address
// from a successful reply. A failure reply is returned as its ReplyStatus.
func ClientRequest(conn io.ReadWriter, cmd Command, address string) (Addr, error) {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return Addr{}, fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(byte(cmd), atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return Addr{}, fmt.Errorf("write request: %w", err)
	}

	status, bound, err := ReadReply(conn)
	if err != nil {
		return Addr{}, err
	}
	if status != ReplySucceeded {
		return bound, fmt.Errorf("%s %s: %w", cmd, address, status)
	}
	return bound, nil
}
