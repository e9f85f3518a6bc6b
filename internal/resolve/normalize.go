package resolve

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// MalformedPathError is returned when a request target cannot be decoded
type MalformedPathError struct {
	Raw string
	Err error
}

func (e *MalformedPathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed request path %q", e.Raw)
	}
	return fmt.Sprintf("malformed request path %q: %v", e.Raw, e.Err)
}

func (e *MalformedPathError) Unwrap() error {
	return e.Err
}

// Normalize turns a raw request target into a decoded, cleaned path that
// starts with "/". The query string and fragment are dropped before decoding.
// The cleaned path never contains ".." segments, so joining it with a root
// cannot leave that root. A trailing slash is kept to mark directory requests.
func Normalize(raw string) (string, error) {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", &MalformedPathError{Raw: raw, Err: err}
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", &MalformedPathError{Raw: raw, Err: fmt.Errorf("path contains NUL byte")}
	}

	// Backslashes are separators on Windows; never let them smuggle a "..".
	decoded = strings.ReplaceAll(decoded, "\\", "/")

	dir := strings.HasSuffix(decoded, "/")
	cleaned := path.Clean("/" + decoded)
	if dir && cleaned != "/" {
		cleaned += "/"
	}

	return cleaned, nil
}
