package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gleicon/devserve/internal/config"
)

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"hello.txt": "hello"})

	var out bytes.Buffer
	var listening *Server

	cfg := testConfig(root)
	cfg.Verbose = true
	s, err := New(cfg, Options{
		Logger:      zerolog.Nop(),
		Out:         &out,
		OnListening: func(s *Server) { listening = s },
	})
	require.NoError(t, err)
	require.Nil(t, s.Addr())

	require.NoError(t, s.Start())
	require.Same(t, s, listening)
	require.NotNil(t, s.Addr())
	require.True(t, strings.HasPrefix(s.URL(), "http://127.0.0.1:"))
	require.Equal(t, s.URL()+" -> "+root+"\n", out.String())

	status, body := fetch(t, s.URL()+"hello.txt")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "hello", body)

	require.NoError(t, s.Shutdown(context.Background()))
	waitClosed(t, s.Done())
	require.NoError(t, s.Err())

	// Shutdown is idempotent
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.Error(t, err)

	require.ErrorIs(t, s.Start(), ErrServerClosed)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s, err := New(testConfig(t.TempDir()), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background()))
	waitClosed(t, s.Done())
}

func TestServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t.TempDir())
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	called := false
	s, err := New(cfg, Options{Logger: zerolog.Nop(), OnListening: func(*Server) { called = true }})
	require.NoError(t, err)

	err = s.Start()
	var listenErr *ListenError
	require.True(t, errors.As(err, &listenErr))
	require.Equal(t, cfg.Addr(), listenErr.Addr)
	require.False(t, called)
}

// slowServer starts a server whose /api requests are held by an upstream
// until release is closed or delay passes. started receives one value per
// request that reached the upstream.
func slowServer(t *testing.T, delay time.Duration, release <-chan struct{}) (*Server, <-chan struct{}, func()) {
	t.Helper()

	started := make(chan struct{}, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-time.After(delay):
		case <-release:
		}
		io.WriteString(w, "done")
	}))

	cfg := testConfig(t.TempDir())
	cfg.Proxy = []config.ProxyConfig{{Path: "/api", Target: upstream.URL}}
	s, err := New(cfg, Options{Logger: zerolog.Nop(), Out: io.Discard})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	return s, started, upstream.Close
}

type result struct {
	status int
	body   string
	err    error
}

func fetchAsync(url string) <-chan result {
	ch := make(chan result, 1)
	go func() {
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 10 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		ch <- result{status: resp.StatusCode, body: string(body), err: err}
	}()
	return ch
}

func TestServer_ShutdownDrainsInFlight(t *testing.T) {
	s, started, closeUpstream := slowServer(t, 300*time.Millisecond, nil)
	defer closeUpstream()

	res := fetchAsync(s.URL() + "api/slow")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	waitClosed(t, s.Done())

	r := <-res
	require.NoError(t, r.err)
	require.Equal(t, http.StatusOK, r.status)
	require.Equal(t, "done", r.body)
}

func TestServer_ShutdownGracePeriodExpires(t *testing.T) {
	release := make(chan struct{})
	s, started, closeUpstream := slowServer(t, time.Minute, release)
	defer closeUpstream()
	defer close(release)

	res := fetchAsync(s.URL() + "api/stuck")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	waitClosed(t, s.Done())

	// The held connection was closed rather than answered
	r := <-res
	require.Error(t, r.err)

	// Later calls report the same outcome
	require.ErrorIs(t, s.Shutdown(context.Background()), context.DeadlineExceeded)
}

func TestRunner_ReloadDrainsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, "done")
	}))
	defer upstream.Close()

	cfg := testConfig(t.TempDir())
	cfg.Proxy = []config.ProxyConfig{{Path: "/api", Target: upstream.URL}}

	r := NewRunner(Options{Logger: zerolog.Nop(), Out: io.Discard})
	require.NoError(t, r.Start(cfg))
	defer r.Stop(context.Background())

	res := fetchAsync(r.Current().URL() + "api/slow")
	<-started

	require.NoError(t, r.Reload(testConfig(t.TempDir())))

	got := <-res
	require.NoError(t, got.err)
	require.Equal(t, http.StatusOK, got.status)
	require.Equal(t, "done", got.body)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	_, err := New(cfg, Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestServer_PublicPathURL(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.ContentBasePublicPath = "assets"

	s, err := New(cfg, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	require.True(t, strings.HasSuffix(s.URL(), "/assets/"))
}

func TestRunner_Reload(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, first, map[string]string{"a.txt": "first"})
	writeFiles(t, second, map[string]string{"a.txt": "second"})

	r := NewRunner(Options{Logger: zerolog.Nop()})
	require.NoError(t, r.Start(testConfig(first)))

	old := r.Current()
	require.NotNil(t, old)
	_, body := fetch(t, old.URL()+"a.txt")
	require.Equal(t, "first", body)

	require.NoError(t, r.Reload(testConfig(second)))
	waitClosed(t, old.Done())

	_, err := net.DialTimeout("tcp", old.Addr().String(), time.Second)
	require.Error(t, err)

	_, body = fetch(t, r.Current().URL()+"a.txt")
	require.Equal(t, "second", body)

	require.NoError(t, r.Stop(context.Background()))
}

func TestRunner_InvalidReloadKeepsServer(t *testing.T) {
	r := NewRunner(Options{Logger: zerolog.Nop()})
	require.NoError(t, r.Start(testConfig(t.TempDir())))
	defer r.Stop(context.Background())

	current := r.Current()
	require.Error(t, r.Reload(testConfig()))
	require.Same(t, current, r.Current())

	select {
	case <-current.Done():
		t.Fatal("server stopped after a rejected reload")
	default:
	}
}

func TestRunner_StopOnSignal(t *testing.T) {
	r := NewRunner(Options{Logger: zerolog.Nop()})
	require.NoError(t, r.Start(testConfig(t.TempDir())))
	s := r.Current()

	signals := make(chan os.Signal, 2)
	r.StopOn(signals)
	signals <- syscall.SIGTERM

	waitClosed(t, r.Done())
	waitClosed(t, s.Done())
	require.Nil(t, r.Current())

	// Further stops and signals are no-ops
	signals <- syscall.SIGINT
	require.NoError(t, r.Stop(context.Background()))
	require.ErrorIs(t, r.Reload(testConfig(t.TempDir())), ErrStopped)
}
