package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORS implements CORS middleware
type CORS struct {
	allowOrigins []string
	allowMethods []string
	allowHeaders []string
	allowAll     bool
}

// NewCORS creates a new CORS middleware
func NewCORS(allowOrigins, allowMethods, allowHeaders []string) *CORS {
	cors := &CORS{
		allowOrigins: allowOrigins,
		allowMethods: allowMethods,
		allowHeaders: allowHeaders,
		allowAll:     slices.Contains(allowOrigins, "*"),
	}

	// Default methods if not specified
	if len(cors.allowMethods) == 0 {
		cors.allowMethods = []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	}

	// Default headers if not specified
	if len(cors.allowHeaders) == 0 {
		cors.allowHeaders = []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Range"}
	}

	return cors
}

// Middleware returns the CORS middleware
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed := c.allowAll || slices.Contains(c.allowOrigins, origin)
		switch {
		case c.allowAll:
			// Browsers reject credentials together with a wildcard origin
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		// Answer preflight requests here, everything else goes through
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(c.allowMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(c.allowHeaders, ", "))
				w.Header().Set("Access-Control-Max-Age", "3600")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
