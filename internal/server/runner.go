package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gleicon/devserve/internal/config"
)

// ErrStopped is returned by Reload after Stop
var ErrStopped = errors.New("runner stopped")

// Runner owns the current server instance. Reloading replaces the instance;
// the previous one is shut down before the new one binds.
type Runner struct {
	opts Options

	mu      sync.Mutex
	current *Server
	stopped bool

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// NewRunner creates a runner that builds every server with opts
func NewRunner(opts Options) *Runner {
	return &Runner{
		opts: opts,
		done: make(chan struct{}),
	}
}

// Start starts the first server instance
func (r *Runner) Start(cfg *config.Config) error {
	return r.Reload(cfg)
}

// Reload replaces the running server with one built from cfg. An invalid
// configuration leaves the current server untouched.
func (r *Runner) Reload(cfg *config.Config) error {
	next, err := New(cfg, r.opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrStopped
	}

	if prev := r.current; prev != nil {
		r.opts.Logger.Info().Msg("reloading configuration")
		r.current = nil
		if err := shutdown(prev); err != nil {
			r.opts.Logger.Warn().Err(err).Msg("previous server did not stop cleanly")
		}
	}

	if err := next.Start(); err != nil {
		return err
	}

	r.current = next
	return nil
}

// Current returns the running server, nil when none is running
func (r *Runner) Current() *Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Stop shuts the current server down. Only the first call has an effect.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		current := r.current
		r.current = nil
		r.mu.Unlock()

		if current != nil {
			r.stopErr = current.Shutdown(ctx)
		}
		close(r.done)
	})

	return r.stopErr
}

// Done is closed once Stop has completed
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// StopOn stops the runner when a value arrives on signals. Each server's
// shutdown_timeout bounds the grace period.
func (r *Runner) StopOn(signals <-chan os.Signal) {
	go func() {
		select {
		case sig := <-signals:
			r.opts.Logger.Info().Str("signal", sig.String()).Msg("received signal")
			ctx, cancel := context.WithTimeout(context.Background(), r.gracePeriod())
			defer cancel()
			r.Stop(ctx)
		case <-r.done:
		}
	}()
}

// HandleSignals stops the runner on SIGINT, SIGTERM, SIGQUIT or SIGHUP
func (r *Runner) HandleSignals() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	r.StopOn(signals)

	go func() {
		<-r.done
		signal.Stop(signals)
	}()
}

func (r *Runner) gracePeriod() time.Duration {
	if s := r.Current(); s != nil && s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return config.Default().ShutdownTimeout
}

// shutdown stops s within its configured grace period
func shutdown(s *Server) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.Default().ShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
