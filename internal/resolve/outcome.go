package resolve

import (
	"io/fs"
	"net/http"
	"time"
)

// Outcome is the result of routing a single request. Exactly one outcome is
// produced per request and it fully determines the response.
type Outcome interface {
	outcome()
}

// Found is a file read from a content root
type Found struct {
	FilePath string // absolute filesystem path of the file that was read
	Body     []byte
	ModTime  time.Time
}

// Redirect sends the client to a deeper canonical path
type Redirect struct {
	Location string
}

// NotFound means no root (and no fallback) produced a file
type NotFound struct {
	Path          string // path as requested by the client
	AttemptedPath string // last path resolution was tried against, differs from Path after a fallback
}

// ServerError is a file that exists but cannot be read
type ServerError struct {
	Err error
}

// Proxied is a buffered upstream response, passed through verbatim
type Proxied struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Malformed is a request target that could not be decoded
type Malformed struct {
	Raw string
	Err error
}

// BadGateway is an upstream that could not be reached
type BadGateway struct {
	Target string
	Err    error
}

// Listing is a directory index page
type Listing struct {
	Path    string // URL path of the directory
	Dir     string // filesystem path of the directory
	Entries []fs.DirEntry
}

func (Found) outcome()       {}
func (Redirect) outcome()    {}
func (NotFound) outcome()    {}
func (ServerError) outcome() {}
func (Proxied) outcome()     {}
func (Malformed) outcome()   {}
func (BadGateway) outcome()  {}
func (Listing) outcome()     {}
