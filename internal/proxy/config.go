package proxy

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/limiter"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

type Config struct {
	// RequestTimeout bounds everything from accept until the success reply
	// has been written, destination resolution and connect included.
	RequestTimeout time.Duration

	// IdleTimeout tears a relay down after that long without traffic. Zero
	// falls back to RequestTimeout.
	IdleTimeout time.Duration

	Dialer   dialer.Dialer
	Resolver resolver.Resolver

	// Auth is the authentication policy. Nil accepts clients offering
	// no-auth.
	Auth socks5.Authenticator

	// SkipAuth reads the request straight away without a method
	// negotiation. This is not RFC 1928 compliant.
	SkipAuth bool

	// AllowUDP enables UDP ASSOCIATE. It also needs PublicAddr.
	AllowUDP bool

	// PublicAddr is the IP reported to clients as the UDP relay address.
	PublicAddr netip.Addr

	Limiter *limiter.Limiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c Config) idleTimeout() time.Duration {
	if c.IdleTimeout > 0 {
		return c.IdleTimeout
	}
	return c.RequestTimeout
}

func (c Config) udpEnabled() bool {
	return c.AllowUDP && c.PublicAddr.IsValid()
}
