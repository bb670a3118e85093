package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// Addr is a SOCKS5 address: an IPv4 or IPv6 address, or a domain name, plus
// a port.
//
//	+------+----------+----------+
//	| ATYP | DST.ADDR | DST.PORT |
//	+------+----------+----------+
//	|  1   | Variable |    2     |
//	+------+----------+----------+
type Addr struct {
	Type AddrType
	IP   netip.Addr // set for AddrIPv4 and AddrIPv6
	Name string     // set for AddrDomain
	Port uint16
}

// AddrFromAddrPort returns the IP address form of ap. IPv4-mapped IPv6
// addresses are reported as IPv4.
func AddrFromAddrPort(ap netip.AddrPort) Addr {
	ip := ap.Addr().Unmap()
	t := AddrIPv6
	if ip.Is4() {
		t = AddrIPv4
	}
	return Addr{Type: t, IP: ip, Port: ap.Port()}
}

// AddrFromNetAddr converts a *net.TCPAddr or *net.UDPAddr. Any other address
// yields the IPv4 zero address.
func AddrFromNetAddr(a net.Addr) Addr {
	switch a := a.(type) {
	case *net.TCPAddr:
		return AddrFromAddrPort(a.AddrPort())
	case *net.UDPAddr:
		return AddrFromAddrPort(a.AddrPort())
	default:
		return ZeroAddr(AddrIPv4)
	}
}

// DomainAddr returns a domain name address.
func DomainAddr(name string, port uint16) (Addr, error) {
	if len(name) > MaxDomainLen {
		return Addr{}, ErrDomainTooLong
	}
	return Addr{Type: AddrDomain, Name: name, Port: port}, nil
}

// ParseHostPort parses "host:port", producing an IP address when host is an
// IP literal and a domain address otherwise.
func ParseHostPort(hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return AddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port))), nil
	}
	return DomainAddr(host, uint16(port))
}

// ZeroAddr returns the all-zero address of the given family, used as the
// bound address of failure replies. Domain falls back to IPv4.
func ZeroAddr(t AddrType) Addr {
	if t == AddrIPv6 {
		return Addr{Type: AddrIPv6, IP: netip.IPv6Unspecified()}
	}
	return Addr{Type: AddrIPv4, IP: netip.IPv4Unspecified()}
}

// IsDomain reports whether a carries a domain name that still needs
// resolving.
func (a Addr) IsDomain() bool {
	return a.Type == AddrDomain
}

// AddrPort returns the IP and port. It is only meaningful for IP addresses.
func (a Addr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.IP, a.Port)
}

// String returns a host:port form suitable for dialing.
func (a Addr) String() string {
	host := a.Name
	if a.Type != AddrDomain {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// Len returns the encoded length of a.
func (a Addr) Len() int {
	switch a.Type {
	case AddrIPv4:
		return 1 + 4 + 2
	case AddrIPv6:
		return 1 + 16 + 2
	default:
		return 1 + 1 + len(a.Name) + 2
	}
}

// AppendTo appends the ATYP ADDR PORT encoding of a to b.
func (a Addr) AppendTo(b []byte) ([]byte, error) {
	switch a.Type {
	case AddrIPv4:
		if !a.IP.Is4() {
			return b, fmt.Errorf("address %s is not IPv4", a.IP)
		}
		ip := a.IP.As4()
		b = append(b, byte(AddrIPv4))
		b = append(b, ip[:]...)
	case AddrIPv6:
		if !a.IP.Is6() {
			return b, fmt.Errorf("address %s is not IPv6", a.IP)
		}
		ip := a.IP.As16()
		b = append(b, byte(AddrIPv6))
		b = append(b, ip[:]...)
	case AddrDomain:
		if len(a.Name) > MaxDomainLen {
			return b, ErrDomainTooLong
		}
		b = append(b, byte(AddrDomain), byte(len(a.Name)))
		b = append(b, a.Name...)
	default:
		return b, ReplyAddressTypeNotSupported
	}
	return binary.BigEndian.AppendUint16(b, a.Port), nil
}

// ParseAddr decodes an ATYP ADDR PORT sequence from the front of b and
// returns the address and the number of bytes consumed.
func ParseAddr(b []byte) (Addr, int, error) {
	if len(b) < 1 {
		return Addr{}, 0, io.ErrUnexpectedEOF
	}

	var a Addr
	n := 1
	switch t := AddrType(b[0]); t {
	case AddrIPv4:
		if len(b) < 1+4+2 {
			return Addr{}, 0, io.ErrUnexpectedEOF
		}
		a = Addr{Type: t, IP: netip.AddrFrom4([4]byte(b[1:5]))}
		n += 4
	case AddrIPv6:
		if len(b) < 1+16+2 {
			return Addr{}, 0, io.ErrUnexpectedEOF
		}
		a = Addr{Type: t, IP: netip.AddrFrom16([16]byte(b[1:17]))}
		n += 16
	case AddrDomain:
		if len(b) < 2 {
			return Addr{}, 0, io.ErrUnexpectedEOF
		}
		l := int(b[1])
		if len(b) < 2+l+2 {
			return Addr{}, 0, io.ErrUnexpectedEOF
		}
		a = Addr{Type: t, Name: string(b[2 : 2+l])}
		n += 1 + l
	default:
		return Addr{}, 0, ReplyAddressTypeNotSupported
	}

	a.Port = binary.BigEndian.Uint16(b[n:])
	return a, n + 2, nil
}

// ReadAddr reads an ATYP ADDR PORT sequence from r.
func ReadAddr(r io.Reader) (Addr, error) {
	var t [1]byte
	if _, err := io.ReadFull(r, t[:]); err != nil {
		return Addr{}, err
	}
	return readAddrBody(r, AddrType(t[0]))
}

// readAddrBody reads the ADDR and PORT that follow an already consumed ATYP.
func readAddrBody(r io.Reader, t AddrType) (Addr, error) {
	var buf [MaxAddrLen]byte
	buf[0] = byte(t)

	var need int
	switch t {
	case AddrIPv4:
		need = 4 + 2
	case AddrIPv6:
		need = 16 + 2
	case AddrDomain:
		if _, err := io.ReadFull(r, buf[1:2]); err != nil {
			return Addr{}, err
		}
		if _, err := io.ReadFull(r, buf[2:2+int(buf[1])+2]); err != nil {
			return Addr{}, err
		}
		a, _, err := ParseAddr(buf[:2+int(buf[1])+2])
		return a, err
	default:
		return Addr{}, ReplyAddressTypeNotSupported
	}

	if _, err := io.ReadFull(r, buf[1:1+need]); err != nil {
		return Addr{}, err
	}
	a, _, err := ParseAddr(buf[:1+need])
	return a, err
}
