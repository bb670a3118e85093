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

	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

// replyGrace bounds the write of a failure reply sent after the request
// deadline has passed.
const replyGrace = time.Second

type SOCKS5Server struct {
	ctx     context.Context
	cfg     Config
	auths   []socks5.Authenticator
	log     *slog.Logger
	verbose bool
}

// NewSOCKS5Server returns a server for cfg. Sessions are torn down when ctx
// is canceled. With verbose set, per-session errors are logged at info
// level instead of debug.
func NewSOCKS5Server(ctx context.Context, cfg Config, verbose bool) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	auth := cfg.Auth
	if auth == nil {
		auth = socks5.NoAuth{}
	}

	return &SOCKS5Server{
		ctx:     ctx,
		cfg:     cfg,
		auths:   []socks5.Authenticator{auth},
		log:     cfg.Logger,
		verbose: verbose,
	}
}

// Serve accepts connections on ln and serves each on its own goroutine. It
// returns nil once the server context is done and ln has been closed.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.Warn("accept failed", "err", err, "retry_in", backoff)

			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.cfg.Metrics.SessionStarted()
	defer s.cfg.Metrics.SessionEnded()

	log := s.log.With("client", conn.RemoteAddr().String())

	if err := s.serveConn(conn, log); err != nil {
		level := slog.LevelDebug
		if s.verbose {
			level = slog.LevelInfo
		}
		log.Log(s.ctx, level, "session ended", "err", err)
	}
}

// serveConn runs one session: handshake, request, resolve and relay.
func (s *SOCKS5Server) serveConn(conn net.Conn, log *slog.Logger) error {
	var deadline time.Time
	if s.cfg.RequestTimeout > 0 {
		deadline = time.Now().Add(s.cfg.RequestTimeout)
		_ = conn.SetDeadline(deadline)
	}

	if !s.cfg.SkipAuth {
		method, user, err := socks5.ServerHandshake(conn, s.auths)
		if err != nil {
			s.cfg.Metrics.HandshakeFailed(handshakeFailure(err))
			return fmt.Errorf("handshake: %w", err)
		}
		log = log.With("method", method.String())
		if user != "" {
			log = log.With("user", user)
		}
	}

	req, err := socks5.ReadRequest(conn)
	if err != nil {
		s.cfg.Metrics.HandshakeFailed(requestFailure(err))
		if rs, ok := socks5.ReplyFor(err); ok {
			_ = s.replyError(conn, rs, socks5.AddrIPv4)
		}
		return fmt.Errorf("read request: %w", err)
	}
	log = log.With("cmd", req.Command.String(), "dst", req.Dst.String())
	s.cfg.Metrics.Request(req.Command.String())

	switch req.Command {
	case socks5.CmdConnect:
	case socks5.CmdUDPAssociate:
		if !s.cfg.udpEnabled() {
			_ = s.replyError(conn, socks5.ReplyCommandNotSupported, req.Dst.Type)
			return fmt.Errorf("udp associate disabled: %w", socks5.ReplyCommandNotSupported)
		}
	default:
		_ = s.replyError(conn, socks5.ReplyCommandNotSupported, req.Dst.Type)
		return fmt.Errorf("%s: %w", req.Command, socks5.ReplyCommandNotSupported)
	}

	ctx, cancel := s.requestContext(deadline)
	defer cancel()

	if req.Command == socks5.CmdUDPAssociate {
		return s.handleUDPAssociate(ctx, conn, req, log)
	}

	dst, err := s.resolve(ctx, req.Dst)
	if err != nil {
		_ = s.replyFailure(conn, socks5.ReplyForDialError(err), req.Dst.Type)
		return err
	}
	return s.handleConnect(ctx, conn, req, dst, log)
}

func (s *SOCKS5Server) requestContext(deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(s.ctx)
	}
	return context.WithDeadline(s.ctx, deadline)
}

// resolve turns a domain destination into an IP address. IP destinations
// are returned unchanged.
func (s *SOCKS5Server) resolve(ctx context.Context, dst socks5.Addr) (socks5.Addr, error) {
	if !dst.IsDomain() {
		return dst, nil
	}

	ip, err := resolver.First(ctx, s.cfg.Resolver, dst.Name)
	if err != nil {
		return socks5.Addr{}, fmt.Errorf("resolve %s: %w: %w", dst.Name, socks5.ReplyHostUnreachable, err)
	}

	return socks5.AddrFromAddrPort(netip.AddrPortFrom(ip, dst.Port)), nil
}

func (s *SOCKS5Server) reply(w io.Writer, status socks5.ReplyStatus, bound socks5.Addr) error {
	s.cfg.Metrics.Reply(status.String())
	return socks5.WriteReply(w, status, bound)
}

// replyError sends a failure reply with a zero address of the request's
// family.
func (s *SOCKS5Server) replyError(w io.Writer, status socks5.ReplyStatus, like socks5.AddrType) error {
	return s.reply(w, status, socks5.ZeroAddr(like))
}

// replyFailure is replyError for failures that may have run into the request
// deadline. The client socket shares that deadline, so the reply gets
// replyGrace of its own.
func (s *SOCKS5Server) replyFailure(conn net.Conn, status socks5.ReplyStatus, like socks5.AddrType) error {
	_ = conn.SetWriteDeadline(time.Now().Add(replyGrace))
	return s.replyError(conn, status, like)
}

func handshakeFailure(err error) string {
	switch {
	case socks5.IsTimeout(err):
		return "timeout"
	case errors.Is(err, socks5.ErrNoAcceptableMethod):
		return "no_acceptable_method"
	case errors.Is(err, socks5.ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, errors.ErrUnsupported):
		return "bad_version"
	default:
		return "io"
	}
}

func requestFailure(err error) string {
	if socks5.IsTimeout(err) {
		return "timeout"
	}
	return "request"
}
