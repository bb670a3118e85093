package socks5

import (
	"fmt"
	"io"
)

// Request is a parsed SOCKS5 request.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Request struct {
	Command Command
	Dst     Addr
}

// ReadRequest reads one request from r.
//
// A wrong version yields ReplyGeneralFailure and an unknown address type
// ReplyAddressTypeNotSupported, both of which the caller is expected to
// send. Commands are not validated here.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("request %w: %w", UnsupportedVersionError(hdr[0]), ReplyGeneralFailure)
	}

	dst, err := readAddrBody(r, AddrType(hdr[3]))
	if err != nil {
		if _, ok := ReplyFor(err); ok {
			return nil, fmt.Errorf("request address type %#02x: %w", hdr[3], err)
		}
		return nil, fmt.Errorf("read request address: %w", err)
	}

	return &Request{Command: Command(hdr[1]), Dst: dst}, nil
}
