// Package resolver provides the destination name resolvers used by the SOCKS5
// server: the system resolver and a direct nameserver client.
package resolver
