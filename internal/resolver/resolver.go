package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

// Resolver turns a host name into addresses.
type Resolver interface {
	LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// System resolves through a net.Resolver. The zero value uses
// net.DefaultResolver.
type System struct {
	Resolver *net.Resolver
}

func (s System) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for i, a := range addrs {
		addrs[i] = a.Unmap()
	}
	return addrs, nil
}

// First resolves host and returns the first address, preferring IPv4 when
// the resolver returned both families.
func First(ctx context.Context, r Resolver, host string) (netip.Addr, error) {
	addrs, err := r.LookupNetIP(ctx, host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, notFound(host, "")
	}

	for _, a := range addrs {
		if a.Is4() {
			return a, nil
		}
	}
	return addrs[0], nil
}

func notFound(host, server string) error {
	return &net.DNSError{Err: errNoSuchHost.Error(), Name: host, Server: server, IsNotFound: true}
}

var errNoSuchHost = errors.New("no such host")
