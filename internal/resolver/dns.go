package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// DNS queries a single nameserver for A and AAAA records. Nothing is cached.
type DNS struct {
	server string
	client *dns.Client
}

// NewDNS returns a resolver for server, given as host or host:port. Port 53
// is assumed when none is given.
func NewDNS(server string, timeout time.Duration) (*DNS, error) {
	if server == "" {
		return nil, errors.New("empty dns server")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &DNS{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// Server returns the nameserver address queries are sent to.
func (d *DNS) Server() string {
	return d.server
}

func (d *DNS) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip.Unmap()}, nil
	}

	var (
		addrs   []netip.Addr
		lastErr error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		got, err := d.exchange(ctx, host, qtype)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return nil, err
			}
			lastErr = err
			continue
		}
		addrs = append(addrs, got...)
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, notFound(host, d.server)
	}
	return addrs, nil
}

func (d *DNS) exchange(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	r, _, err := d.client.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return nil, &net.DNSError{
			Err:         fmt.Sprintf("%s query: %v", dns.TypeToString[qtype], err),
			Name:        host,
			Server:      d.server,
			IsTimeout:   errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
			IsTemporary: true,
		}
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, notFound(host, d.server)
	default:
		return nil, &net.DNSError{
			Err:    fmt.Sprintf("%s query: %s", dns.TypeToString[qtype], dns.RcodeToString[r.Rcode]),
			Name:   host,
			Server: d.server,
		}
	}

	var addrs []netip.Addr
	for _, rr := range r.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(rr.A.To4()); ok {
				addrs = append(addrs, ip)
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(rr.AAAA.To16()); ok {
				addrs = append(addrs, ip.Unmap())
			}
		}
	}
	return addrs, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
