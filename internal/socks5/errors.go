package socks5

import (
	"errors"
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyStatus is the REP field of a SOCKS5 reply.
//
// A ReplyStatus is also an error: failures that happen before the success
// reply is sent carry the status the client must be told about.
type ReplyStatus byte

// Reply field values as defined in RFC 1928 section 6.
const (
	ReplySucceeded               ReplyStatus = ReplyStatus(txsocks5.RepSuccess)
	ReplyGeneralFailure          ReplyStatus = 0x01
	ReplyConnectionNotAllowed    ReplyStatus = 0x02
	ReplyNetworkUnreachable      ReplyStatus = 0x03
	ReplyHostUnreachable         ReplyStatus = ReplyStatus(txsocks5.RepHostUnreachable)
	ReplyConnectionRefused       ReplyStatus = ReplyStatus(txsocks5.RepConnectionRefused)
	ReplyTTLExpired              ReplyStatus = 0x06
	ReplyCommandNotSupported     ReplyStatus = ReplyStatus(txsocks5.RepCommandNotSupported)
	ReplyAddressTypeNotSupported ReplyStatus = 0x08
)

func (r ReplyStatus) Error() string {
	switch r {
	case ReplySucceeded:
		return "succeeded"
	case ReplyGeneralFailure:
		return "general SOCKS server failure"
	case ReplyConnectionNotAllowed:
		return "connection not allowed by ruleset"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyTTLExpired:
		return "TTL expired"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressTypeNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply %#02x", byte(r))
	}
}

func (r ReplyStatus) String() string {
	return r.Error()
}

// UnsupportedVersionError reports a frame whose version byte is not the one
// expected at that point of the exchange.
type UnsupportedVersionError byte

func (v UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version: %#02x", byte(v))
}

func (UnsupportedVersionError) Is(target error) bool {
	return target == errors.ErrUnsupported
}

var (
	// ErrNoAcceptableMethod is returned after the server answered the
	// method offer with X'FF'.
	ErrNoAcceptableMethod = errors.New("no acceptable authentication method")

	// ErrAuthFailed is returned after a failed username/password
	// sub-negotiation has been answered.
	ErrAuthFailed = errors.New("username/password authentication failed")

	// ErrDomainTooLong is returned when encoding a domain name that does
	// not fit a single length byte.
	ErrDomainTooLong = errors.New("domain name longer than 255 bytes")
)

// ReplyFor returns the status a pre-relay failure should be reported with,
// and false when the failure leaves no defined point to reply at.
func ReplyFor(err error) (ReplyStatus, bool) {
	var rs ReplyStatus
	if errors.As(err, &rs) {
		return rs, true
	}
	return 0, false
}
