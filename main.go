package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks5d/internal/config"
	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/limiter"
	"github.com/die-net/socks5d/internal/logging"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/proxy"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "", "YAML config file. Flags set on the command line override its values.")

		listenAddr     = pflag.String("listen-addr", "127.0.0.1:1080", "SOCKS5 listen address")
		publicAddr     = pflag.String("public-addr", "", "Public IP reported to clients as the UDP relay address")
		requestTimeout = secondsOrDuration(10 * time.Second)
		idleTimeout    = secondsOrDuration(5 * time.Minute)
		allowUDP       = pflag.Bool("allow-udp", false, "Allow UDP ASSOCIATE (requires --public-addr)")
		skipAuth       = pflag.Bool("skip-auth", false, "Read the request without a method negotiation (not RFC 1928 compliant)")
		username       = pflag.String("username", "", "Username for password auth")
		password       = pflag.String("password", "", "Password for password auth")

		dnsServer      = pflag.String("dns-server", "", "DNS server (host[:port]) for destination lookups. Empty uses the system resolver.")
		upstream       = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | socks5://[user:pass@]host:port")
		bandwidthLimit = pflag.String("bandwidth-limit", "", "Bandwidth limit for all relayed traffic in bytes per second, with optional K|M|G suffix. Empty disables.")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for the handshake with an upstream proxy")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

		debugListen = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		verbose     = pflag.Bool("verbose", false, "Enable per-connection error logging")
		logLevel    = pflag.String("log-level", "info", "Log level: debug|info|warn|error")
		logFormat   = pflag.String("log-format", "text", "Log format: text|json")
		logFile     = pflag.String("log-file", "", "Log to this file with size-based rotation instead of stderr")
	)

	pflag.VarP(&requestTimeout, "request-timeout", "t", "Timeout from accept until the destination is connected (duration or seconds)")
	pflag.Var(&idleTimeout, "idle-timeout", "Tear a relay down after this long without traffic (duration or seconds)")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [%s|%s]\n", os.Args[0], config.AuthNone, config.AuthPassword)
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	var flagErr error
	setters := map[string]func(){
		"listen-addr":     func() { cfg.ListenAddr = *listenAddr },
		"public-addr":     func() { cfg.PublicAddr = *publicAddr },
		"request-timeout": func() { cfg.RequestTimeout = config.DurationString(requestTimeout) },
		"idle-timeout":    func() { cfg.IdleTimeout = config.DurationString(idleTimeout) },
		"allow-udp":       func() { cfg.AllowUDP = *allowUDP },
		"skip-auth":       func() { cfg.SkipAuth = *skipAuth },
		"username":        func() { cfg.Auth.Username = *username },
		"password":        func() { cfg.Auth.Password = *password },
		"dns-server":      func() { cfg.DNSServer = *dnsServer },
		"upstream":        func() { cfg.Upstream = *upstream },
		"tcp-keepalive":   func() { cfg.TCPKeepAlive = *tcpKeepAlive },
		"debug-listen":    func() { cfg.DebugListen = *debugListen },
		"verbose":         func() { cfg.Verbose = *verbose },
		"log-level":       func() { cfg.Log.Level = *logLevel },
		"log-format":      func() { cfg.Log.Format = *logFormat },
		"log-file":        func() { cfg.Log.Filename = *logFile },
		"bandwidth-limit": func() {
			if *bandwidthLimit == "" {
				cfg.BandwidthLimit = 0
				return
			}
			n, err := config.ParseSize(*bandwidthLimit)
			if err != nil {
				flagErr = fmt.Errorf("invalid --bandwidth-limit: %w", err)
			}
			cfg.BandwidthLimit = config.SizeString(n)
		},
	}

	// Without a config file every flag applies, defaults included. With one,
	// only flags given on the command line do.
	visit := pflag.VisitAll
	if *configPath != "" {
		visit = pflag.Visit
	}
	visit(func(f *pflag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set()
		}
	})
	if flagErr != nil {
		return flagErr
	}

	switch args := pflag.Args(); len(args) {
	case 0:
	case 1:
		cfg.Auth.Mode = args[0]
	default:
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	pcfg := proxy.Config{
		RequestTimeout: cfg.RequestTimeout.Duration(),
		IdleTimeout:    cfg.IdleTimeout.Duration(),
		SkipAuth:       cfg.SkipAuth,
		AllowUDP:       cfg.AllowUDP,
		Limiter:        limiter.New(int64(cfg.BandwidthLimit)),
		Metrics:        metrics.New(),
		Logger:         logger,
	}

	if cfg.PublicAddr != "" {
		pcfg.PublicAddr, err = netip.ParseAddr(cfg.PublicAddr)
		if err != nil {
			return fmt.Errorf("invalid --public-addr: %w", err)
		}
	}

	switch cfg.Auth.Mode {
	case config.AuthPassword:
		pcfg.Auth = socks5.UserPass{Credentials: socks5.StaticCredentials{cfg.Auth.Username: cfg.Auth.Password}}
	default:
		pcfg.Auth = socks5.NoAuth{}
	}

	if cfg.DNSServer != "" {
		dns, err := resolver.NewDNS(cfg.DNSServer, pcfg.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid --dns-server: %w", err)
		}
		logger.Info("resolving through dns server", "server", dns.Server())
		pcfg.Resolver = dns
	} else {
		pcfg.Resolver = resolver.System{}
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
	}

	pcfg.Dialer, err = dialer.New(dialCfg, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		http.Handle("/metrics", pcfg.Metrics.Handler())

		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", cfg.DebugListen)
	}

	ln, err := proxy.ListenTCP(ctx, cfg.ListenAddr, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, pcfg, cfg.Verbose)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	logger.Info("socks5 proxy listening",
		"addr", ln.Addr().String(),
		"auth", cfg.Auth.Mode,
		"udp", cfg.AllowUDP,
		"upstream", cfg.Upstream,
		"bandwidth_limit", pcfg.Limiter.Rate(),
	)

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

// secondsOrDuration is a duration flag that also accepts a bare number of
// seconds, matching the config file.
type secondsOrDuration time.Duration

func (d *secondsOrDuration) Set(s string) error {
	s = strings.TrimSpace(s)

	v, err := time.ParseDuration(s)
	if n, aerr := strconv.Atoi(s); aerr == nil {
		v, err = time.Duration(n)*time.Second, nil
	}
	if err != nil {
		return err
	}
	if v < 0 {
		return errors.New("must not be negative")
	}

	*d = secondsOrDuration(v)
	return nil
}

func (d *secondsOrDuration) String() string {
	return time.Duration(*d).String()
}

func (*secondsOrDuration) Type() string {
	return "duration"
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
