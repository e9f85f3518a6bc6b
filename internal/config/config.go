package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gleicon/devserve/internal/proxy"
)

// Config is the development server configuration
type Config struct {
	ContentBase           []string          `mapstructure:"content_base"`             // Folders to serve files from, first match wins
	ContentBasePublicPath string            `mapstructure:"content_base_public_path"` // URL prefix the folders are mounted under
	HistoryAPIFallback    FallbackConfig    `mapstructure:"history_api_fallback"`
	Proxy                 []ProxyConfig     `mapstructure:"proxy"`
	Headers               map[string]string `mapstructure:"headers"`    // Set on every response
	MIMETypes             map[string]string `mapstructure:"mime_types"` // Extension -> content type overrides
	Extensions            []string          `mapstructure:"extensions"` // Tried after the exact file name, e.g. ".html"
	Index                 []string          `mapstructure:"index"`      // Directory index documents
	ServeIndex            bool              `mapstructure:"serve_index"`
	Compress              bool              `mapstructure:"compress"`

	Host    string    `mapstructure:"host"`
	Port    int       `mapstructure:"port"`
	TLS     TLSConfig `mapstructure:"tls"`
	Verbose bool      `mapstructure:"verbose"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // Grace period for in-flight requests
	ProxyTimeout    time.Duration `mapstructure:"proxy_timeout"`    // Upstream round trip limit
}

// FallbackConfig configures the history API fallback
type FallbackConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Target         string `mapstructure:"target"`           // Fallback document, default "<public path>index.html"
	DisableDotRule bool   `mapstructure:"disable_dot_rule"` // Also rewrite paths whose last segment has a dot
}

// ProxyConfig is a single proxy rule. Rules are applied in order.
type ProxyConfig struct {
	Path         string       `mapstructure:"path"`   // e.g. "/api/*", "/api", "/**/*.json"
	Target       string       `mapstructure:"target"` // empty means match without forwarding
	ChangeOrigin bool         `mapstructure:"change_origin"`
	StripPrefix  string       `mapstructure:"strip_prefix"`
	Bypass       BypassConfig `mapstructure:"bypass"`
}

// BypassConfig is the declarative form of a bypass hook
type BypassConfig struct {
	Accept  string `mapstructure:"accept"`  // Media type that triggers the bypass, e.g. "text/html"
	Rewrite string `mapstructure:"rewrite"` // Path to serve instead, empty serves the requested path
}

// TLSConfig contains TLS material. Either a certificate pair or ACME.
type TLSConfig struct {
	CertFile string   `mapstructure:"cert_file"`
	KeyFile  string   `mapstructure:"key_file"`
	Auto     bool     `mapstructure:"auto"` // Let's Encrypt via autocert
	Email    string   `mapstructure:"email"`
	Domains  []string `mapstructure:"domains"`
	CacheDir string   `mapstructure:"cache_dir"`
}

// RateLimitConfig enables per client rate limiting when RPS > 0
type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// CORSConfig enables CORS headers when Origins is not empty
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
	Methods []string `mapstructure:"methods"`
	Headers []string `mapstructure:"headers"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ContentBase:           []string{""},
		ContentBasePublicPath: "/",
		Index:                 []string{"index.html"},
		ServeIndex:            true,
		Host:                  "localhost",
		Port:                  10001,
		Verbose:               true,
		ShutdownTimeout:       5 * time.Second,
		ProxyTimeout:          proxy.DefaultTimeout,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if len(c.ContentBase) == 0 {
		return fmt.Errorf("content_base must list at least one folder")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HistoryAPIFallback.Target != "" && !strings.HasPrefix(c.HistoryAPIFallback.Target, "/") {
		return fmt.Errorf("history_api_fallback.target must start with /: %s", c.HistoryAPIFallback.Target)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	if c.TLS.Auto && len(c.TLS.Domains) == 0 {
		return fmt.Errorf("tls.auto requires at least one domain")
	}
	if c.TLS.Auto && c.TLS.CertFile != "" {
		return fmt.Errorf("tls.auto and tls.cert_file are mutually exclusive")
	}
	for i, p := range c.Proxy {
		if p.Target == "" && p.Bypass.Accept == "" {
			return fmt.Errorf("proxy[%d] %s: needs a target or a bypass", i, p.Path)
		}
		if p.Bypass.Rewrite != "" && p.Bypass.Accept == "" {
			return fmt.Errorf("proxy[%d] %s: bypass.rewrite requires bypass.accept", i, p.Path)
		}
	}
	return nil
}

// TLSEnabled reports whether the server should serve HTTPS
func (c *Config) TLSEnabled() bool {
	return c.TLS.Auto || c.TLS.CertFile != ""
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ProxyRules converts the proxy section into dispatcher rules, keeping order
func (c *Config) ProxyRules() []proxy.Rule {
	rules := make([]proxy.Rule, 0, len(c.Proxy))
	for _, p := range c.Proxy {
		rule := proxy.Rule{
			Pattern:      p.Path,
			Target:       p.Target,
			ChangeOrigin: p.ChangeOrigin,
			StripPrefix:  p.StripPrefix,
		}
		if p.Bypass.Accept != "" {
			rule.Bypass = proxy.AcceptBypass(p.Bypass.Accept, p.Bypass.Rewrite)
		}
		rules = append(rules, rule)
	}
	return rules
}
