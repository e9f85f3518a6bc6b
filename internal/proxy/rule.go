package proxy

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// BypassAction tells the dispatcher what to do with a matched request
type BypassAction int

const (
	// ActionProceed forwards the request to the rule's target, if any
	ActionProceed BypassAction = iota
	// ActionSkip skips the proxy and falls through to static resolution
	ActionSkip
	// ActionRewrite skips the proxy and resolves a different path statically
	ActionRewrite
)

func (a BypassAction) String() string {
	switch a {
	case ActionProceed:
		return "proceed"
	case ActionSkip:
		return "skip"
	case ActionRewrite:
		return "rewrite"
	default:
		return fmt.Sprintf("BypassAction(%d)", int(a))
	}
}

// BypassResult is the decision of a bypass hook
type BypassResult struct {
	Action BypassAction
	Path   string // request target to resolve instead, only for ActionRewrite
}

// Proceed lets the request through to the upstream
func Proceed() BypassResult {
	return BypassResult{Action: ActionProceed}
}

// Skip serves the request statically
func Skip() BypassResult {
	return BypassResult{Action: ActionSkip}
}

// Rewrite serves target statically instead of the requested path
func Rewrite(target string) BypassResult {
	return BypassResult{Action: ActionRewrite, Path: target}
}

// BypassFunc decides per request whether a matched rule is skipped
type BypassFunc func(r *http.Request) BypassResult

// Rule is a single proxy rule. A rule without Target never forwards and is
// only useful for its Bypass hook.
type Rule struct {
	Pattern      string
	Target       string
	Bypass       BypassFunc
	ChangeOrigin bool   // send the target's host as Host header
	StripPrefix  string // removed from the path before forwarding
}

// AcceptBypass returns a bypass hook that triggers when the request's Accept
// header lists mediaType. A non-empty rewrite turns the skip into a rewrite.
// This covers the common "browser navigations get the app, XHR gets the API"
// setup expressible from a config file.
func AcceptBypass(mediaType, rewrite string) BypassFunc {
	return func(r *http.Request) BypassResult {
		if !accepts(r.Header.Get("Accept"), mediaType) {
			return Proceed()
		}
		if rewrite != "" {
			return Rewrite(rewrite)
		}
		return Skip()
	}
}

// accepts reports whether an Accept header explicitly lists mediaType
func accepts(header, mediaType string) bool {
	for _, part := range strings.Split(header, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if strings.EqualFold(mt, mediaType) {
			return true
		}
	}
	return false
}

// parseTarget parses a target URL, defaulting the scheme to http
func parseTarget(target string) (*url.URL, error) {
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}

	return u, nil
}
