package proxy

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/die-net/socks5d/internal/socks5"
	"github.com/die-net/socks5d/internal/testutil"
)

func startUDPAssociation(t *testing.T, cfg Config) (net.Conn, netip.AddrPort) {
	t.Helper()

	cfg.AllowUDP = true
	cfg.PublicAddr = netip.MustParseAddr("127.0.0.1")
	addr := startSOCKS5Server(t, cfg)

	c := dialProxy(t, addr)
	if err := socks5.ClientNegotiate(c, socks5.Auth{}); err != nil {
		t.Fatal(err)
	}
	bound, err := socks5.ClientRequest(c, socks5.CmdUDPAssociate, "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	if bound.IP != cfg.PublicAddr || bound.Port == 0 {
		t.Fatalf("unexpected relay address %s", bound)
	}
	return c, bound.AddrPort()
}

func listenUDPClient(t *testing.T) *net.UDPConn {
	t.Helper()

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func sendDatagram(t *testing.T, pc *net.UDPConn, relay netip.AddrPort, d socks5.Datagram) {
	t.Helper()

	b, err := d.AppendTo(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pc.WriteToUDPAddrPort(b, relay); err != nil {
		t.Fatal(err)
	}
}

func readDatagram(t *testing.T, pc *net.UDPConn) (socks5.Datagram, netip.AddrPort) {
	t.Helper()

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65535)
	n, from, err := pc.ReadFromUDPAddrPort(buf)
	if err != nil {
		t.Fatal(err)
	}
	d, err := socks5.ParseDatagram(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return d, from
}

func TestUDPAssociateEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := testutil.StartEchoUDPServer(t, ctx)
	defer echo.Close()
	echoAddr := netip.MustParseAddrPort(echo.LocalAddr().String())

	_, relay := startUDPAssociation(t, Config{})
	client := listenUDPClient(t)

	// Fragments are dropped; only the second datagram comes back.
	sendDatagram(t, client, relay, socks5.Datagram{
		Frag: 1,
		Addr: socks5.AddrFromAddrPort(echoAddr),
		Data: []byte("fragment"),
	})
	sendDatagram(t, client, relay, socks5.Datagram{
		Addr: socks5.AddrFromAddrPort(echoAddr),
		Data: []byte("ping"),
	})

	d, from := readDatagram(t, client)
	if from != relay {
		t.Errorf("reply came from %s, want %s", from, relay)
	}
	if d.Frag != 0 {
		t.Errorf("frag = %d", d.Frag)
	}
	if d.Addr.AddrPort() != echoAddr {
		t.Errorf("origin = %s, want %s", d.Addr, echoAddr)
	}
	if !bytes.Equal(d.Data, []byte("ping")) {
		t.Errorf("data = %q", d.Data)
	}
}

func TestUDPAssociateDomainDestination(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echo := testutil.StartEchoUDPServer(t, ctx)
	defer echo.Close()
	echoAddr := netip.MustParseAddrPort(echo.LocalAddr().String())

	_, relay := startUDPAssociation(t, Config{Resolver: localResolver{}})
	client := listenUDPClient(t)

	dst, err := socks5.DomainAddr("echo.test", echoAddr.Port())
	if err != nil {
		t.Fatal(err)
	}
	sendDatagram(t, client, relay, socks5.Datagram{Addr: dst, Data: []byte("by name")})

	d, _ := readDatagram(t, client)
	if d.Addr.AddrPort() != echoAddr {
		t.Errorf("origin = %s, want %s", d.Addr, echoAddr)
	}
	if !bytes.Equal(d.Data, []byte("by name")) {
		t.Errorf("data = %q", d.Data)
	}
}

func TestUDPAssociateUnknownSourceDropped(t *testing.T) {
	_, relay := startUDPAssociation(t, Config{})
	client := listenUDPClient(t)
	stranger := listenUDPClient(t)

	echo := listenUDPClient(t)
	echoAddr := netip.MustParseAddrPort(echo.LocalAddr().String())

	// Identify the client by sending once.
	sendDatagram(t, client, relay, socks5.Datagram{Addr: socks5.AddrFromAddrPort(echoAddr), Data: []byte("hi")})
	_ = echo.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	if _, _, err := echo.ReadFromUDPAddrPort(buf); err != nil {
		t.Fatal(err)
	}

	// A peer the client never addressed must not reach it.
	if _, err := stranger.WriteToUDPAddrPort([]byte("spoof"), relay); err != nil {
		t.Fatal(err)
	}
	if _, err := echo.WriteToUDPAddrPort([]byte("legit"), relay); err != nil {
		t.Fatal(err)
	}

	d, _ := readDatagram(t, client)
	if !bytes.Equal(d.Data, []byte("legit")) {
		t.Fatalf("data = %q, want legit", d.Data)
	}
}

func TestUDPAssociateEndsWithControlConnection(t *testing.T) {
	c, relay := startUDPAssociation(t, Config{})
	client := listenUDPClient(t)

	echo := listenUDPClient(t)
	echoAddr := netip.MustParseAddrPort(echo.LocalAddr().String())

	_ = c.Close()

	// Once the association is gone, nothing is forwarded any more. Give the
	// relay a moment to notice the close.
	time.Sleep(100 * time.Millisecond)
	sendDatagram(t, client, relay, socks5.Datagram{Addr: socks5.AddrFromAddrPort(echoAddr), Data: []byte("late")})

	_ = echo.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if n, _, err := echo.ReadFromUDPAddrPort(make([]byte, 64)); err == nil {
		t.Fatalf("relay forwarded %d bytes after the control connection closed", n)
	}
}

func TestUDPAssociateIdle(t *testing.T) {
	c, _ := startUDPAssociation(t, Config{IdleTimeout: 100 * time.Millisecond})
	assertClosed(t, c)
}
