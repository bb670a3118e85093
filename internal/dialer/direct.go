package dialer

import (
	"context"
	"fmt"
	"net"
)

type directDialer struct {
	dialer net.Dialer
}

// NewDirectDialer returns a Dialer that connects straight to the
// destination.
func NewDirectDialer(cfg Config) (Dialer, error) {
	return &directDialer{
		dialer: net.Dialer{
			Timeout:         cfg.DialTimeout,
			KeepAliveConfig: cfg.KeepAlive,
		},
	}, nil
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
