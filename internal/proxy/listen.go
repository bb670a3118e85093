package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP listens on the given TCP address and returns a net.Listener
// that applies keepAliveConfig to accepted connections.
func ListenTCP(ctx context.Context, addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}

// listenRelayUDP binds the per-association UDP socket on every local
// address with a port picked by the kernel. On dual-stack hosts the socket
// reaches both IPv4 and IPv6 destinations.
func listenRelayUDP(ctx context.Context) (*net.UDPConn, error) {
	lc := net.ListenConfig{}

	pc, err := lc.ListenPacket(ctx, "udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("listen udp relay: %w", err)
	}

	return pc.(*net.UDPConn), nil
}
