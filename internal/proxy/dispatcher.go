package proxy

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gleicon/devserve/internal/resolve"
)

// DefaultTimeout bounds a single upstream round trip
const DefaultTimeout = 60 * time.Second

// Result is what the dispatcher decided for a request
type Result struct {
	// Outcome is set when the request was forwarded (Proxied or BadGateway)
	Outcome resolve.Outcome

	// Rewrite is set when a bypass replaced the request target
	Rewrite string

	// Rule is the matched rule, nil when nothing matched
	Rule *Rule
}

// Handled reports whether the request was answered by the proxy
func (r Result) Handled() bool {
	return r.Outcome != nil
}

type entry struct {
	rule      *Rule
	pattern   Pattern
	forwarder *Forwarder
}

// Dispatcher applies the first matching proxy rule to a request. Rules keep
// their configuration order. A Dispatcher is read-only once built.
type Dispatcher struct {
	entries []entry
	logger  zerolog.Logger
}

// NewDispatcher compiles rules in order
func NewDispatcher(rules []Rule, timeout time.Duration, logger zerolog.Logger) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rules = append([]Rule(nil), rules...)

	d := &Dispatcher{logger: logger}
	for i := range rules {
		rule := &rules[i]

		pattern, err := ParsePattern(rule.Pattern)
		if err != nil {
			return nil, err
		}

		e := entry{rule: rule, pattern: pattern}
		if rule.Target != "" {
			fw, err := NewForwarder(rule, timeout)
			if err != nil {
				return nil, err
			}
			e.forwarder = fw
		}

		d.entries = append(d.entries, e)
	}

	return d, nil
}

// Len returns the number of rules
func (d *Dispatcher) Len() int {
	return len(d.entries)
}

// Dispatch finds the first rule matching path, the normalized request path,
// and applies it. Only one rule is ever applied. A forwarded request keeps
// the path exactly as the client sent it.
func (d *Dispatcher) Dispatch(req *http.Request, path string) Result {
	e := d.match(path)
	if e == nil {
		return Result{}
	}

	res := Result{Rule: e.rule}

	if e.rule.Bypass != nil {
		decision := e.rule.Bypass(req)
		switch decision.Action {
		case ActionSkip:
			return res
		case ActionRewrite:
			res.Rewrite = decision.Path
			return res
		}
	}

	if e.forwarder == nil {
		return res
	}

	proxied, err := e.forwarder.Forward(req.Context(), req)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("target", e.rule.Target).
			Msg("proxy request failed")
		res.Outcome = resolve.BadGateway{Target: e.rule.Target, Err: err}
		return res
	}

	res.Outcome = proxied
	return res
}

// match returns the first entry whose pattern matches the path
func (d *Dispatcher) match(path string) *entry {
	for i := range d.entries {
		if d.entries[i].pattern.Match(path) {
			return &d.entries[i]
		}
	}
	return nil
}
