// Package socks5 implements the SOCKS5 wire protocol used by socks5d.
//
// It owns the framing of every RFC 1928 and RFC 1929 message the server
// exchanges: method negotiation, username/password sub-negotiation, requests,
// replies, and the UDP ASSOCIATE datagram envelope. Addresses are modeled as
// a closed union ([Addr]) over IPv4, IPv6 and domain names.
//
// Protocol constants and the client-side message writers come from
// github.com/txthinking/socks5; decoding on the server side is done here so
// that each failure can be mapped to the reply the client expects.
//
// The package does no dialing or relaying; see internal/proxy for the
// per-connection session driver.
package socks5
