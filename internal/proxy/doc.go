// Package proxy implements the SOCKS5 server: the per-connection session
// driver, the CONNECT byte relay and the UDP ASSOCIATE datagram relay, plus
// the listener and copy plumbing they share.
package proxy
