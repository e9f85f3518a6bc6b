package response

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/gleicon/devserve/internal/resolve"
)

// Writer turns a resolution outcome into an HTTP response
type Writer struct {
	headers http.Header
	types   *Types
	logger  zerolog.Logger
}

// NewWriter creates a writer. headers are set on every response before any
// outcome specific header, so the latter win on collision.
func NewWriter(headers map[string]string, types *Types, logger zerolog.Logger) *Writer {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	if types == nil {
		types = NewTypes(nil)
	}

	return &Writer{
		headers: h,
		types:   types,
		logger:  logger,
	}
}

// ApplyHeaders sets the globally configured headers on w
func (wr *Writer) ApplyHeaders(w http.ResponseWriter) {
	for k, v := range wr.headers {
		w.Header()[k] = append([]string(nil), v...)
	}
}

// Write emits the response for out
func (wr *Writer) Write(w http.ResponseWriter, r *http.Request, out resolve.Outcome) {
	wr.ApplyHeaders(w)

	switch o := out.(type) {
	case resolve.Found:
		wr.found(w, r, o)
	case resolve.Redirect:
		w.Header().Set("Location", o.Location)
		w.WriteHeader(http.StatusTemporaryRedirect)
	case resolve.NotFound:
		msg := fmt.Sprintf("Not Found: %s", o.Path)
		if o.AttemptedPath != "" && o.AttemptedPath != o.Path {
			msg += fmt.Sprintf(" (fallback %s)", o.AttemptedPath)
		}
		writeText(w, http.StatusNotFound, msg)
	case resolve.ServerError:
		wr.logger.Error().Err(o.Err).Str("path", r.URL.Path).Msg("failed to read file")
		writeText(w, http.StatusInternalServerError, fmt.Sprintf("Internal Server Error: %v", o.Err))
	case resolve.Proxied:
		for k, v := range o.Header {
			w.Header()[k] = append([]string(nil), v...)
		}
		if w.Header().Get("Content-Length") == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(o.Body)))
		}
		w.WriteHeader(o.StatusCode)
		w.Write(o.Body)
	case resolve.Malformed:
		writeText(w, http.StatusBadRequest, fmt.Sprintf("Bad Request: %v", o.Err))
	case resolve.BadGateway:
		writeText(w, http.StatusBadGateway, fmt.Sprintf("Bad Gateway: %v", o.Err))
	case resolve.Listing:
		wr.listing(w, o)
	default:
		wr.logger.Error().Str("outcome", fmt.Sprintf("%T", out)).Msg("unhandled outcome")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// found writes a file, honoring a single byte range
func (wr *Writer) found(w http.ResponseWriter, r *http.Request, o resolve.Found) {
	size := int64(len(o.Body))

	h := w.Header()
	h.Set("Content-Type", wr.types.ContentType(o.FilePath))
	h.Set("Accept-Ranges", "bytes")
	if !o.ModTime.IsZero() {
		h.Set("Last-Modified", o.ModTime.UTC().Format(http.TimeFormat))
	}

	if rng, ok := parseRange(r.Header.Get("Range"), size); ok {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
		h.Set("Content-Length", strconv.FormatInt(rng.length(), 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(o.Body[rng.start : rng.end+1])
		return
	}

	h.Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(o.Body)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}
