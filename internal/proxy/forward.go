package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/gleicon/devserve/internal/resolve"
)

// UpstreamError is returned when the upstream cannot be reached or its
// response cannot be read
type UpstreamError struct {
	Target string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Hop-by-hop headers, removed in both directions
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends requests to a single upstream and buffers the response
type Forwarder struct {
	target *url.URL
	rule   *Rule
	client *http.Client
}

// NewForwarder creates a forwarder for a rule with a target
func NewForwarder(rule *Rule, timeout time.Duration) (*Forwarder, error) {
	target, err := parseTarget(rule.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %s: %w", rule.Target, err)
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	// Upstream redirects go back to the browser untouched
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Forwarder{
		target: target,
		rule:   rule,
		client: client,
	}, nil
}

// Forward sends the request upstream and returns the buffered response
func (f *Forwarder) Forward(ctx context.Context, req *http.Request) (resolve.Proxied, error) {
	out, err := f.outgoing(ctx, req)
	if err != nil {
		return resolve.Proxied{}, &UpstreamError{Target: f.target.String(), Err: err}
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return resolve.Proxied{}, &UpstreamError{Target: f.target.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resolve.Proxied{}, &UpstreamError{Target: f.target.String(), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	if hasBody(req.Method, resp.StatusCode) {
		// The body is buffered, so the length is known even for chunked responses
		header.Set("Content-Length", strconv.Itoa(len(body)))
	} else if req.Method == http.MethodHead && header.Get("Content-Length") == "" && resp.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	return resolve.Proxied{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

// outgoing builds the upstream request from the inbound one
func (f *Forwarder) outgoing(ctx context.Context, req *http.Request) (*http.Request, error) {
	path := req.URL.EscapedPath()
	if f.rule.StripPrefix != "" {
		path = strings.TrimPrefix(path, f.rule.StripPrefix)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
	}

	escaped := singleJoiningSlash(f.target.EscapedPath(), path)
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %s: %w", escaped, err)
	}

	u := *f.target
	u.Path = decoded
	u.RawPath = escaped
	u.RawQuery = req.URL.RawQuery
	if f.target.RawQuery != "" && req.URL.RawQuery != "" {
		u.RawQuery = f.target.RawQuery + "&" + req.URL.RawQuery
	} else if f.target.RawQuery != "" {
		u.RawQuery = f.target.RawQuery
	}

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = req.ContentLength

	out.Header = req.Header.Clone()
	removeHopHeaders(out.Header)

	out.Host = req.Host
	if f.rule.ChangeOrigin {
		out.Host = f.target.Host
	}

	// Add standard proxy headers
	if clientIP := extractClientIP(req); clientIP != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		out.Header.Set("X-Forwarded-For", clientIP)
	}

	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	out.Header.Set("X-Forwarded-Proto", proto)
	out.Header.Set("X-Forwarded-Host", req.Host)

	return out, nil
}

// hasBody reports whether a response to method with status carries a body.
// Otherwise the upstream's Content-Length describes a body never sent.
func hasBody(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status >= 100 && status < 200, status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// singleJoiningSlash joins two URL paths with a single slash
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")

	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// extractClientIP returns the peer address of the request without port
func extractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
