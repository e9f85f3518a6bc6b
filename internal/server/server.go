package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gleicon/devserve/internal/config"
)

// ErrServerClosed is returned by Start on a server that was shut down
var ErrServerClosed = errors.New("server closed")

// ListenError reports that the listen address could not be bound
type ListenError struct {
	Addr string
	Err  error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// Options holds what a server needs besides its configuration
type Options struct {
	Logger zerolog.Logger

	// Out receives the startup banner, default os.Stdout
	Out io.Writer

	// OnListening is called once the listener is bound
	OnListening func(*Server)
}

// Server is one running instance of the development server
type Server struct {
	cfg        *config.Config
	opts       Options
	handler    *Handler
	tlsConfig  *tls.Config
	httpServer *http.Server
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	started  bool
	closed   bool

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
	serveErr     error
}

// New builds a server for cfg. Nothing is bound until Start.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	handler, err := NewHandler(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := cfg.BuildTLS()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		opts:      opts,
		handler:   handler,
		tlsConfig: tlsConfig,
		logger:    opts.Logger,
		done:      make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Handler:           Wrap(handler, cfg, opts.Logger),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          log.New(opts.Logger, "", 0),
	}

	return s, nil
}

// Config returns the configuration the server was built from
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Handler returns the request handler without middleware
func (s *Server) Handler() *Handler {
	return s.handler
}

// Start binds the listen address and serves in the background. A bind
// failure is returned as *ListenError.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}

	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return &ListenError{Addr: addr, Err: err}
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.listener = ln
	s.started = true
	s.mu.Unlock()

	go s.serve(ln)

	s.logger.Info().Str("addr", ln.Addr().String()).Bool("tls", s.tlsConfig != nil).Msg("listening")
	if s.cfg.Verbose {
		s.banner()
	}
	if s.opts.OnListening != nil {
		s.opts.OnListening(s)
	}

	return nil
}

func (s *Server) serve(ln net.Listener) {
	defer close(s.done)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("server stopped unexpectedly")
		s.serveErr = err
	}
}

// banner prints one line per content root
func (s *Server) banner() {
	url := s.URL()
	for _, root := range s.handler.Roots() {
		fmt.Fprintf(s.opts.Out, "%s -> %s\n", url, root)
	}
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the base URL of the server including the public path
func (s *Server) URL() string {
	scheme := "http"
	if s.tlsConfig != nil {
		scheme = "https"
	}

	host := s.cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	port := strconv.Itoa(s.cfg.Port)
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = strconv.Itoa(addr.Port)
	}

	return scheme + "://" + net.JoinHostPort(host, port) + s.handler.PublicPath()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires, then closes the remaining connections. Calling it more
// than once returns the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		s.mu.Unlock()

		if !started {
			close(s.done)
			return
		}

		s.logger.Info().Msg("shutting down")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("grace period expired, closing connections")
			s.httpServer.Close()
			s.shutdownErr = err
		}
		<-s.done
	})

	return s.shutdownErr
}

// Done is closed once the server has stopped serving
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the server, if it stopped on its own
func (s *Server) Err() error {
	select {
	case <-s.done:
		return s.serveErr
	default:
		return nil
	}
}
