package proxy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern matches request paths against a rule's context
type Pattern struct {
	raw    string
	expr   string
	glob   bool
	always bool
}

// ParsePattern compiles a rule pattern.
//
//	"*" or "**"   matches every path
//	"/api/*"      is the prefix "/api"
//	"/api"        is the prefix "/api"
//	"/**/*.json"  is a glob
func ParsePattern(raw string) (Pattern, error) {
	p := Pattern{raw: raw}

	switch {
	case raw == "" || raw == "*" || raw == "**" || raw == "/**":
		p.always = true
		return p, nil
	case strings.HasSuffix(raw, "/*") && !hasMeta(strings.TrimSuffix(raw, "/*")):
		p.expr = strings.TrimSuffix(raw, "/*")
		return p, nil
	case hasMeta(raw):
		if !doublestar.ValidatePattern(raw) {
			return Pattern{}, fmt.Errorf("invalid proxy pattern %q", raw)
		}
		p.expr = raw
		p.glob = true
		return p, nil
	default:
		p.expr = raw
		return p, nil
	}
}

// Match reports whether the request path matches
func (p Pattern) Match(path string) bool {
	if p.always {
		return true
	}
	if p.glob {
		ok, err := doublestar.Match(p.expr, path)
		return err == nil && ok
	}
	return strings.HasPrefix(path, p.expr)
}

// String returns the pattern as configured
func (p Pattern) String() string {
	return p.raw
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
