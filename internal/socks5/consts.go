package socks5

import (
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// Version is the SOCKS protocol version carried by every frame.
const Version = txsocks5.Ver

// Method is an authentication method identifier.
type Method byte

// Authentication methods as defined in RFC 1928 section 3.
const (
	MethodNoAuth       Method = Method(txsocks5.MethodNone)
	MethodGSSAPI       Method = 0x01
	MethodUserPass     Method = Method(txsocks5.MethodUsernamePassword)
	MethodNoAcceptable Method = 0xff
)

func (m Method) String() string {
	switch m {
	case MethodNoAuth:
		return "no-auth"
	case MethodGSSAPI:
		return "gssapi"
	case MethodUserPass:
		return "username/password"
	case MethodNoAcceptable:
		return "no-acceptable"
	default:
		return fmt.Sprintf("method(%#02x)", byte(m))
	}
}

// Command is a SOCKS5 request command.
type Command byte

// Request commands as defined in RFC 1928 section 4.
const (
	CmdConnect      Command = Command(txsocks5.CmdConnect)
	CmdBind         Command = 0x02
	CmdUDPAssociate Command = 0x03
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "connect"
	case CmdBind:
		return "bind"
	case CmdUDPAssociate:
		return "udp-associate"
	default:
		return fmt.Sprintf("command(%#02x)", byte(c))
	}
}

// AddrType is the ATYP field of requests, replies and datagrams.
type AddrType byte

// Address types as defined in RFC 1928 section 5.
const (
	AddrIPv4   AddrType = AddrType(txsocks5.ATYPIPv4)
	AddrDomain AddrType = AddrType(txsocks5.ATYPDomain)
	AddrIPv6   AddrType = AddrType(txsocks5.ATYPIPv6)
)

// RFC 1929 username/password sub-negotiation.
const (
	UserPassVersion       = 0x01
	UserPassStatusSuccess = txsocks5.UserPassStatusSuccess
	UserPassStatusFailure = txsocks5.UserPassStatusFailure
)

// MaxDomainLen is the longest domain name that fits a length-prefixed ATYP 3
// address.
const MaxDomainLen = 255

// MaxAddrLen is the longest encoded ATYP ADDR PORT sequence.
const MaxAddrLen = 1 + 1 + MaxDomainLen + 2
