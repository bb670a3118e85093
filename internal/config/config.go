// Package config loads the optional YAML configuration file. Values set on
// the command line take precedence over the file; see main.go.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthNone     = "no-auth"
	AuthPassword = "password"
)

// Config is the file form of the server settings.
type Config struct {
	ListenAddr     string         `yaml:"listen-addr"`
	PublicAddr     string         `yaml:"public-addr,omitempty"`
	RequestTimeout DurationString `yaml:"request-timeout,omitempty"`
	IdleTimeout    DurationString `yaml:"idle-timeout,omitempty"`
	AllowUDP       bool           `yaml:"allow-udp,omitempty"`
	SkipAuth       bool           `yaml:"skip-auth,omitempty"`
	Auth           AuthConfig     `yaml:"auth,omitempty"`
	DNSServer      string         `yaml:"dns-server,omitempty"`
	Upstream       string         `yaml:"upstream,omitempty"`
	BandwidthLimit SizeString     `yaml:"bandwidth-limit,omitempty"`
	TCPKeepAlive   string         `yaml:"tcp-keepalive,omitempty"`
	DebugListen    string         `yaml:"debug-listen,omitempty"`
	Verbose        bool           `yaml:"verbose,omitempty"`
	Log            LogConfig      `yaml:"log,omitempty"`
}

// AuthConfig selects the authentication policy.
type AuthConfig struct {
	Mode     string `yaml:"mode,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LogConfig holds log output settings. An empty Filename logs to stderr;
// otherwise the file is rotated by size.
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	Format     string `yaml:"format,omitempty"`
	Filename   string `yaml:"filename,omitempty"`
	MaxSize    int    `yaml:"max-size,omitempty"` // megabytes
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAge     int    `yaml:"max-age,omitempty"` // days
	Compress   bool   `yaml:"compress,omitempty"`
}

// DurationString accepts Go durations ("10s", "5m") or a bare integer
// number of seconds.
type DurationString time.Duration

func (d *DurationString) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if value.Tag == "!!int" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*d = DurationString(time.Duration(v) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if dur < 0 {
		return fmt.Errorf("invalid duration %q: negative", s)
	}
	*d = DurationString(dur)
	return nil
}

func (d DurationString) Duration() time.Duration {
	return time.Duration(d)
}

// SizeString is a byte rate. It accepts a bare integer or a number with a
// K, M or G suffix (powers of 1024).
type SizeString int64

func (s *SizeString) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseSize(value.Value)
	if err != nil {
		return err
	}
	*s = SizeString(v)
	return nil
}

// ParseSize parses the SizeString syntax.
func ParseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty size string")
	}

	multiplier := int64(1)
	num := strings.TrimSuffix(strings.ToUpper(raw), "B")
	switch {
	case strings.HasSuffix(num, "K"):
		multiplier = 1 << 10
		num = strings.TrimSuffix(num, "K")
	case strings.HasSuffix(num, "M"):
		multiplier = 1 << 20
		num = strings.TrimSuffix(num, "M")
	case strings.HasSuffix(num, "G"):
		multiplier = 1 << 30
		num = strings.TrimSuffix(num, "G")
	}

	v, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size string %q", raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid size string %q: negative", raw)
	}
	return v * multiplier, nil
}

// SetDefaults fills in unset optional fields.
func (c *Config) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DurationString(10 * time.Second)
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DurationString(5 * time.Minute)
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthNone
	}
	if c.Upstream == "" {
		c.Upstream = "direct://"
	}
	if c.TCPKeepAlive == "" {
		c.TCPKeepAlive = "45:45:3"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Filename != "" {
		if c.Log.MaxSize == 0 {
			c.Log.MaxSize = 20
		}
		if c.Log.MaxBackups == 0 {
			c.Log.MaxBackups = 5
		}
		if c.Log.MaxAge == 0 {
			c.Log.MaxAge = 28
		}
	}
}

// Validate reports combinations the server cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen-addr is required")
	}

	switch c.Auth.Mode {
	case AuthNone:
	case AuthPassword:
		if c.Auth.Username == "" {
			return errors.New("password auth requires a username")
		}
	default:
		return fmt.Errorf("unknown auth mode %q (want %s or %s)", c.Auth.Mode, AuthNone, AuthPassword)
	}

	if c.PublicAddr != "" {
		if _, err := netip.ParseAddr(c.PublicAddr); err != nil {
			return fmt.Errorf("invalid public-addr: %w", err)
		}
	}
	if c.AllowUDP && c.PublicAddr == "" {
		return errors.New("can't allow UDP if public-addr is not set")
	}
	if c.SkipAuth && c.Auth.Mode != AuthNone {
		return errors.New("can't use skip-auth flag and authentication together")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Load reads path and applies defaults. The result is not validated, since
// command line flags may still be applied on top of it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}
