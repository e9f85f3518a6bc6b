package resolve

import (
	"net/http"
	"path"
	"strings"
)

// Request is the read-only view of an inbound request used for resolution
type Request struct {
	Path   string // normalized URL path
	Query  string // raw query string, carried over to redirects
	Method string
	Header http.Header
}

// Fallback configures the history API fallback
type Fallback struct {
	Enabled bool
	Target  string // URL path of the fallback document, default "/index.html"

	// DisableDotRule also rewrites paths whose last segment has a dot,
	// e.g. "/users/jane.doe"
	DisableDotRule bool
}

// Router resolves requests against a Chain, retrying once against the
// fallback document when nothing matched and optionally listing directories
type Router struct {
	chain    *Chain
	fallback Fallback
	listing  bool
}

// NewRouter creates a router. listing enables directory index pages.
func NewRouter(chain *Chain, fallback Fallback, listing bool) *Router {
	if fallback.Target == "" {
		fallback.Target = chain.mount("/index.html")
	}

	return &Router{
		chain:    chain,
		fallback: fallback,
		listing:  listing,
	}
}

// Chain returns the underlying root chain
func (r *Router) Chain() *Chain {
	return r.chain
}

// Resolve runs the full static resolution for a request
func (r *Router) Resolve(req Request) Outcome {
	out := r.resolve(req)

	if redirect, ok := out.(Redirect); ok && req.Query != "" {
		redirect.Location += "?" + req.Query
		return redirect
	}

	return out
}

func (r *Router) resolve(req Request) Outcome {
	out := r.chain.Resolve(req.Path)

	if _, missing := out.(NotFound); !missing {
		return out
	}

	if r.fallback.Enabled && r.wantsFallback(req) {
		out = r.resolveFallback(req)
		if _, missing := out.(NotFound); !missing {
			return out
		}
	}

	if r.listing && isRead(req.Method) {
		dir, entries, err := r.chain.Directory(req.Path)
		if err == nil {
			return Listing{Path: req.Path, Dir: dir, Entries: entries}
		}
	}

	return out
}

// wantsFallback reports whether a missed request looks like a browser
// navigation: a GET or HEAD that accepts HTML, for a path without a file
// extension unless the dot rule is disabled
func (r *Router) wantsFallback(req Request) bool {
	if !isRead(req.Method) || !acceptsHTML(req.Header) {
		return false
	}
	if r.fallback.DisableDotRule {
		return true
	}
	return !strings.Contains(path.Base(req.Path), ".")
}

// resolveFallback resolves the fallback target exactly once. Its result is
// final; a miss reports the requested path alongside the fallback target.
func (r *Router) resolveFallback(req Request) Outcome {
	target, err := Normalize(r.fallback.Target)
	if err != nil {
		return ServerError{Err: err}
	}

	out := r.chain.Resolve(target)
	if nf, missing := out.(NotFound); missing {
		nf.Path = req.Path
		nf.AttemptedPath = target
		return nf
	}

	return out
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// acceptsHTML reports whether the Accept header names text/html or */*.
// A request without Accept header is not a navigation.
func acceptsHTML(h http.Header) bool {
	accept := h.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}
