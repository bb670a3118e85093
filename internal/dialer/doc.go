// Package dialer provides the outbound dialers the SOCKS5 server uses to
// reach CONNECT destinations.
//
// Dialers implement a small interface (DialContext) and connect either
// directly or through an upstream SOCKS5 proxy.
package dialer
