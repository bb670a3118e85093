package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/socks5"
)

// handleConnect dials dst, reports the outcome to the client and, on
// success, relays bytes until either side finishes.
func (s *SOCKS5Server) handleConnect(ctx context.Context, conn net.Conn, req *socks5.Request, dst socks5.Addr, log *slog.Logger) error {
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		status := socks5.ReplyForDialError(err)
		_ = s.replyFailure(conn, status, req.Dst.Type)
		return fmt.Errorf("connect %s: %w", dst, err)
	}
	defer up.Close()

	bound := socks5.AddrFromNetAddr(up.LocalAddr())
	if err := s.reply(conn, socks5.ReplySucceeded, bound); err != nil {
		return err
	}
	log.Debug("connected", "bound", bound.String())

	// From here on the idle timeout applies instead of the request deadline.
	_ = conn.SetDeadline(time.Time{})

	client, dest := newIdlePair(s.cfg.Limiter.WrapConn(conn), up, s.cfg.idleTimeout())
	sent, received, err := CopyBidirectional(s.ctx, client, dest)
	s.cfg.Metrics.AddBytes(metrics.Upload, sent)
	s.cfg.Metrics.AddBytes(metrics.Download, received)
	log.Debug("relay finished", "sent", sent, "received", received)

	if err != nil {
		return fmt.Errorf("relay %s: %w", dst, err)
	}
	return nil
}
