package config

import (
	"crypto/tls"
	"fmt"

	"golang.org/x/crypto/acme/autocert"
)

// BuildTLS returns the TLS configuration for the listener, or nil when TLS
// is disabled. The material is handed to the transport untouched.
func (c *Config) BuildTLS() (*tls.Config, error) {
	switch {
	case c.TLS.CertFile != "":
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	case c.TLS.Auto:
		return c.autocertManager().TLSConfig(), nil
	default:
		return nil, nil
	}
}

// autocertManager configures certificates from Let's Encrypt
func (c *Config) autocertManager() *autocert.Manager {
	cacheDir := c.TLS.CacheDir
	if cacheDir == "" {
		cacheDir = ".devserve/certs"
	}

	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      c.TLS.Email,
		HostPolicy: autocert.HostWhitelist(c.TLS.Domains...),
		Cache:      autocert.DirCache(cacheDir),
	}
}
