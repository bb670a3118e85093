package socks5

import (
	"fmt"
	"io"
)

// Datagram is a UDP ASSOCIATE datagram with its envelope decoded.
//
//	+----+------+------+----------+----------+----------+
//	|RSV | FRAG | ATYP | DST.ADDR | DST.PORT |   DATA   |
//	+----+------+------+----------+----------+----------+
//	| 2  |  1   |  1   | Variable |    2     | Variable |
//	+----+------+------+----------+----------+----------+
type Datagram struct {
	Frag byte
	Addr Addr
	Data []byte
}

// ParseDatagram decodes the envelope at the front of b. Data aliases b.
func ParseDatagram(b []byte) (Datagram, error) {
	if len(b) < 3 {
		return Datagram{}, fmt.Errorf("datagram header: %w", io.ErrUnexpectedEOF)
	}
	addr, n, err := ParseAddr(b[3:])
	if err != nil {
		return Datagram{}, fmt.Errorf("datagram address: %w", err)
	}
	return Datagram{Frag: b[2], Addr: addr, Data: b[3+n:]}, nil
}

// HeaderLen returns the encoded envelope length for addr.
func HeaderLen(addr Addr) int {
	return 3 + addr.Len()
}

// AppendTo appends the encoded datagram to b.
func (d Datagram) AppendTo(b []byte) ([]byte, error) {
	b = append(b, 0, 0, d.Frag)
	b, err := d.Addr.AppendTo(b)
	if err != nil {
		return b, err
	}
	return append(b, d.Data...), nil
}
