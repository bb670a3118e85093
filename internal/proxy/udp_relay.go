package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

// Room left in front of each received datagram for the envelope added on
// the way back to the client. Origins are always IP addresses.
const udpHeadroom = 3 + 1 + 16 + 2

// maxKnownDestinations caps the per-association set of peers that may send
// datagrams back to the client.
const maxKnownDestinations = 4096

var (
	errControlClosed = errors.New("control connection closed")
	errRelayIdle     = errors.New("udp relay idle")
)

// handleUDPAssociate binds a relay socket, reports it to the client and
// relays datagrams until the control connection closes or the association
// goes idle.
func (s *SOCKS5Server) handleUDPAssociate(ctx context.Context, conn net.Conn, req *socks5.Request, log *slog.Logger) error {
	pc, err := listenRelayUDP(ctx)
	if err != nil {
		_ = s.replyError(conn, socks5.ReplyGeneralFailure, req.Dst.Type)
		return err
	}
	defer pc.Close()

	port := uint16(pc.LocalAddr().(*net.UDPAddr).Port)
	bound := socks5.AddrFromAddrPort(netip.AddrPortFrom(s.cfg.PublicAddr, port))
	if err := s.reply(conn, socks5.ReplySucceeded, bound); err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	r := &udpRelay{
		srv:       s,
		pc:        pc,
		controlIP: socks5.AddrFromNetAddr(conn.RemoteAddr()).IP,
		known:     make(map[netip.AddrPort]struct{}),
		log:       log,
	}
	if !req.Dst.IsDomain() {
		r.wantPort = req.Dst.Port
	}
	log.Debug("udp relay bound", "bound", bound.String(), "local", pc.LocalAddr().String())

	g, gctx := errgroup.WithContext(s.ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = pc.Close()
		_ = conn.Close()
	})
	defer stop()

	g.Go(func() error {
		// Stray bytes from the client are discarded; EOF or a read error
		// ends the association.
		_, _ = io.Copy(io.Discard, conn)
		return errControlClosed
	})
	g.Go(func() error {
		return r.serve(gctx)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errControlClosed), errors.Is(err, errRelayIdle):
		log.Debug("udp relay finished", "reason", err)
		return nil
	case s.ctx.Err() != nil:
		return nil
	}
	return fmt.Errorf("udp relay: %w", err)
}

type udpRelay struct {
	srv *SOCKS5Server
	pc  *net.UDPConn
	log *slog.Logger

	// The client is the first sender from the control connection's IP (and
	// from wantPort, when the request named one). It is fixed from then on.
	controlIP netip.Addr
	wantPort  uint16
	client    netip.AddrPort

	// Destinations the client has sent to; only these may answer.
	known map[netip.AddrPort]struct{}
}

func (r *udpRelay) serve(ctx context.Context) error {
	buf := datagramBuffers.Get()
	defer datagramBuffers.Put(buf)

	idle := r.srv.cfg.idleTimeout()
	for {
		if idle > 0 {
			_ = r.pc.SetReadDeadline(time.Now().Add(idle))
		}

		n, from, err := r.pc.ReadFromUDPAddrPort(buf[udpHeadroom:])
		if err != nil {
			if isTimeout(err) {
				return errRelayIdle
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		if r.isClient(from) {
			r.forward(ctx, buf[udpHeadroom:udpHeadroom+n])
			continue
		}
		r.reply(buf, n, from)
	}
}

func (r *udpRelay) isClient(from netip.AddrPort) bool {
	if r.client.IsValid() {
		return from == r.client
	}
	if from.Addr() != r.controlIP {
		return false
	}
	if r.wantPort != 0 && from.Port() != r.wantPort {
		return false
	}

	r.client = from
	r.log.Debug("udp client identified", "source", from.String())
	return true
}

// forward strips the envelope from a client datagram and sends the payload
// to its destination.
func (r *udpRelay) forward(ctx context.Context, b []byte) {
	m := r.srv.cfg.Metrics

	d, err := socks5.ParseDatagram(b)
	if err != nil {
		m.DatagramDropped("malformed")
		return
	}
	if d.Frag != 0 {
		m.DatagramDropped("fragmented")
		return
	}

	dst, err := r.destination(ctx, d.Addr)
	if err != nil {
		m.DatagramDropped("resolve")
		r.log.Debug("udp destination unresolved", "dst", d.Addr.String(), "err", err)
		return
	}

	if _, ok := r.known[dst]; !ok && len(r.known) < maxKnownDestinations {
		r.known[dst] = struct{}{}
	}

	r.srv.cfg.Limiter.Wait(len(d.Data))
	if _, err := r.pc.WriteToUDPAddrPort(d.Data, dst); err != nil {
		m.DatagramDropped("send")
		r.log.Debug("udp send failed", "dst", dst.String(), "err", err)
		return
	}
	m.Datagram(metrics.Upload, len(d.Data))
}

func (r *udpRelay) destination(ctx context.Context, a socks5.Addr) (netip.AddrPort, error) {
	if !a.IsDomain() {
		return a.AddrPort(), nil
	}

	if t := r.srv.cfg.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	ip, err := resolver.First(ctx, r.srv.cfg.Resolver, a.Name)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip, a.Port), nil
}

// reply wraps the n payload bytes at buf[udpHeadroom:] with from as origin
// and sends them to the client. The envelope is written into the headroom.
func (r *udpRelay) reply(buf []byte, n int, from netip.AddrPort) {
	m := r.srv.cfg.Metrics

	if !r.client.IsValid() {
		m.DatagramDropped("no_client")
		return
	}
	if _, ok := r.known[from]; !ok {
		m.DatagramDropped("unknown_source")
		return
	}

	origin := socks5.AddrFromAddrPort(from)
	start := udpHeadroom - socks5.HeaderLen(origin)
	hdr := append(buf[start:start], 0, 0, 0)
	if _, err := origin.AppendTo(hdr); err != nil {
		m.DatagramDropped("malformed")
		return
	}

	r.srv.cfg.Limiter.Wait(n)
	if _, err := r.pc.WriteToUDPAddrPort(buf[start:udpHeadroom+n], r.client); err != nil {
		m.DatagramDropped("send")
		r.log.Debug("udp reply failed", "client", r.client.String(), "err", err)
		return
	}
	m.Datagram(metrics.Download, n)
}
