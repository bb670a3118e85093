package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/die-net/socks5d/internal/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through an upstream SOCKS5
// proxy using the CONNECT command.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

// NewSOCKS5ProxyDialer constructs a dialer for the proxy at proxyAddr. If
// username is non-empty, username/password authentication is offered.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) (Dialer, error) {
	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    direct,
	}, nil
}

// DialContext connects to the upstream proxy and asks it to CONNECT to
// address. A failure reply from the proxy is returned wrapping its
// socks5.ReplyStatus.
//
// The negotiation is bounded by ctx and NegotiationTimeout; the deadline is
// cleared before returning.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	if dl, ok := negotiationDeadline(ctx, f.cfg.NegotiationTimeout); ok {
		_ = c.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Unix(1, 0))
	})

	_, err = socks5.ClientDial(c, f.auth, address)
	if !stop() || ctx.Err() != nil {
		_ = c.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	_ = c.SetDeadline(time.Time{})
	return c, nil
}

func negotiationDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	dl, ok := ctx.Deadline()
	if timeout > 0 {
		if t := time.Now().Add(timeout); !ok || t.Before(dl) {
			return t, true
		}
	}
	return dl, ok
}
