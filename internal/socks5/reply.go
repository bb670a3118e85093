package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// WriteReply writes a reply frame carrying status and the bound address.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
func WriteReply(w io.Writer, status ReplyStatus, bound Addr) error {
	b := make([]byte, 0, 3+MaxAddrLen)
	b = append(b, Version, byte(status), 0x00)
	b, err := bound.AppendTo(b)
	if err != nil {
		return fmt.Errorf("encode bound address: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s reply: %w", status, err)
	}
	return nil
}

// WriteErrorReply writes a failure reply with a zero bound address of the
// same family as the request's destination.
func WriteErrorReply(w io.Writer, status ReplyStatus, like AddrType) error {
	return WriteReply(w, status, ZeroAddr(like))
}

// ReadReply reads a reply frame.
func ReadReply(r io.Reader) (ReplyStatus, Addr, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, Addr{}, fmt.Errorf("read reply header: %w", err)
	}
	if hdr[0] != Version {
		return 0, Addr{}, fmt.Errorf("reply: %w", UnsupportedVersionError(hdr[0]))
	}
	bound, err := ReadAddr(r)
	if err != nil {
		return 0, Addr{}, fmt.Errorf("read reply address: %w", err)
	}
	return ReplyStatus(hdr[1]), bound, nil
}

// ReplyForDialError maps a failure to resolve or connect to a destination
// to the reply status reported to the client.
func ReplyForDialError(err error) ReplyStatus {
	if rs, ok := ReplyFor(err); ok {
		return rs
	}

	if rs, ok := replyForErrno(err); ok {
		return rs
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReplyHostUnreachable
	}

	return ReplyGeneralFailure
}

// IsTimeout reports whether err is a deadline or timeout failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
