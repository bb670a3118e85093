package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startDNSServer(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	records := map[string][]string{
		"both.test.":   {"both.test. 60 IN A 192.0.2.1", "both.test. 60 IN AAAA 2001:db8::1"},
		"v6only.test.": {"v6only.test. 60 IN AAAA 2001:db8::2"},
		"empty.test.":  nil,
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)

		q := r.Question[0]
		rrs, ok := records[q.Name]
		if !ok {
			m.SetRcode(r, dns.RcodeNameError)
			_ = w.WriteMsg(m)
			return
		}
		for _, s := range rrs {
			rr, err := dns.NewRR(s)
			if err != nil {
				continue
			}
			if rr.Header().Rrtype == q.Qtype {
				m.Answer = append(m.Answer, rr)
			}
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}

	return pc.LocalAddr().String()
}

func TestDNSLookupNetIP(t *testing.T) {
	server := startDNSServer(t)

	r, err := NewDNS(server, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		host         string
		want         []netip.Addr
		wantNotFound bool
	}{
		{host: "both.test", want: []netip.Addr{netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("2001:db8::1")}},
		{host: "v6only.test", want: []netip.Addr{netip.MustParseAddr("2001:db8::2")}},
		{host: "198.51.100.4", want: []netip.Addr{netip.MustParseAddr("198.51.100.4")}},
		{host: "empty.test", wantNotFound: true},
		{host: "missing.test", wantNotFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			got, err := r.LookupNetIP(ctx, tt.host)
			if tt.wantNotFound {
				var dnsErr *net.DNSError
				if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
					t.Fatalf("expected not found, got %v %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewDNSDefaultPort(t *testing.T) {
	t.Parallel()

	r, err := NewDNS("192.0.2.53", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if r.Server() != "192.0.2.53:53" {
		t.Fatalf("server = %s", r.Server())
	}

	if _, err := NewDNS("", time.Second); err == nil {
		t.Fatal("expected error for empty server")
	}
}

type staticResolver []netip.Addr

func (s staticResolver) LookupNetIP(context.Context, string) ([]netip.Addr, error) {
	return s, nil
}

func TestFirst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addrs   staticResolver
		want    netip.Addr
		wantErr bool
	}{
		{
			name:  "prefers ipv4",
			addrs: staticResolver{netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("192.0.2.1")},
			want:  netip.MustParseAddr("192.0.2.1"),
		},
		{
			name:  "ipv6 only",
			addrs: staticResolver{netip.MustParseAddr("2001:db8::1")},
			want:  netip.MustParseAddr("2001:db8::1"),
		},
		{
			name:    "empty",
			addrs:   staticResolver{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := First(context.Background(), tt.addrs, "host.test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSystemLookupLiteral(t *testing.T) {
	t.Parallel()

	got, err := System{}.LookupNetIP(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != netip.MustParseAddr("127.0.0.1") {
		t.Fatalf("got %v", got)
	}
}
