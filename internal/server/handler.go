package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/gleicon/devserve/internal/config"
	"github.com/gleicon/devserve/internal/proxy"
	"github.com/gleicon/devserve/internal/resolve"
	"github.com/gleicon/devserve/internal/response"
	"github.com/gleicon/devserve/internal/server/middleware"
)

// Handler answers every request: proxy rules first, then the content roots
type Handler struct {
	dispatcher *proxy.Dispatcher
	router     *resolve.Router
	writer     *response.Writer
}

// NewHandler builds the request pipeline described by cfg
func NewHandler(cfg *config.Config, logger zerolog.Logger) (*Handler, error) {
	chain, err := resolve.NewChain(cfg.ContentBase, resolve.ChainOptions{
		PublicPath: cfg.ContentBasePublicPath,
		Extensions: cfg.Extensions,
		IndexNames: cfg.Index,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := proxy.NewDispatcher(cfg.ProxyRules(), cfg.ProxyTimeout, logger)
	if err != nil {
		return nil, err
	}

	router := resolve.NewRouter(chain, resolve.Fallback{
		Enabled:        cfg.HistoryAPIFallback.Enabled,
		Target:         cfg.HistoryAPIFallback.Target,
		DisableDotRule: cfg.HistoryAPIFallback.DisableDotRule,
	}, cfg.ServeIndex)

	return &Handler{
		dispatcher: dispatcher,
		router:     router,
		writer:     response.NewWriter(cfg.Headers, response.NewTypes(cfg.MIMETypes), logger),
	}, nil
}

// Roots returns the absolute content roots in precedence order
func (h *Handler) Roots() []string {
	return h.router.Chain().Roots()
}

// PublicPath returns the URL prefix the roots are mounted under
func (h *Handler) PublicPath() string {
	return h.router.Chain().PublicPath()
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.writer.Write(w, r, h.Resolve(r))
}

// Resolve computes the outcome for a request without writing anything
func (h *Handler) Resolve(r *http.Request) resolve.Outcome {
	raw := r.URL.EscapedPath()
	p, err := resolve.Normalize(raw)
	if err != nil {
		return resolve.Malformed{Raw: raw, Err: err}
	}

	res := h.dispatcher.Dispatch(r, p)
	if res.Handled() {
		return res.Outcome
	}

	if res.Rewrite != "" {
		rewritten, err := resolve.Normalize(res.Rewrite)
		if err != nil {
			return resolve.Malformed{Raw: res.Rewrite, Err: err}
		}
		p = rewritten
	}

	return h.router.Resolve(resolve.Request{
		Path:   p,
		Query:  r.URL.RawQuery,
		Method: r.Method,
		Header: r.Header,
	})
}

// Wrap applies the optional middleware configured in cfg around h.
// Order, outermost first: access log, rate limit, CORS, compression.
func Wrap(h http.Handler, cfg *config.Config, logger zerolog.Logger) http.Handler {
	if cfg.Compress {
		h = gzhttp.GzipHandler(h)
	}

	if len(cfg.CORS.Origins) > 0 {
		h = middleware.NewCORS(cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers).Middleware(h)
	}

	if cfg.RateLimit.RPS > 0 {
		h = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware(h)
	}

	if cfg.Verbose {
		h = middleware.NewLogger(logger).Middleware(h)
	}

	return h
}
