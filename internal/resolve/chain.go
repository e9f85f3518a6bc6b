package resolve

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ChainOptions configures how a Chain maps URL paths onto its roots
type ChainOptions struct {
	PublicPath string   // URL prefix the roots are mounted under, default "/"
	Extensions []string // extensions tried after the exact name, e.g. ".html"
	IndexNames []string // index documents for directory requests, default "index.html"
}

// Chain is an ordered list of content roots. Earlier roots shadow later ones.
// A Chain is read-only once built and safe for concurrent use.
type Chain struct {
	roots      []string
	publicPath string
	extensions []string
	indexNames []string
}

// NewChain creates a chain over the given root directories
func NewChain(roots []string, opts ChainOptions) (*Chain, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one content root is required")
	}

	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			root = "."
		}
		p, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid content root %s: %w", root, err)
		}
		abs = append(abs, p)
	}

	indexNames := opts.IndexNames
	if len(indexNames) == 0 {
		indexNames = []string{"index.html"}
	}

	return &Chain{
		roots:      abs,
		publicPath: PublicPath(opts.PublicPath),
		extensions: opts.Extensions,
		indexNames: indexNames,
	}, nil
}

// PublicPath normalizes a mount prefix so that it starts and ends with "/"
func PublicPath(p string) string {
	p = "/" + strings.Trim(p, "/")
	if p != "/" {
		p += "/"
	}
	return p
}

// Roots returns the absolute root directories in precedence order
func (c *Chain) Roots() []string {
	roots := make([]string, len(c.roots))
	copy(roots, c.roots)
	return roots
}

// PublicPath returns the URL prefix the roots are mounted under
func (c *Chain) PublicPath() string {
	return c.publicPath
}

// Resolve looks up a normalized URL path in each root in turn. It returns
// Found, Redirect, NotFound or ServerError. A read error other than "missing"
// stops the search without consulting later roots.
func (c *Chain) Resolve(urlPath string) Outcome {
	p, ok := c.strip(urlPath)
	if !ok {
		if urlPath+"/" == c.publicPath {
			return Redirect{Location: escapePath(c.publicPath)}
		}
		return NotFound{Path: urlPath, AttemptedPath: urlPath}
	}

	candidates := Candidates(p, c.extensions, c.indexNames)

	for _, dir := range c.roots {
		out, err := c.resolveRoot(dir, candidates)
		if err != nil {
			return ServerError{Err: err}
		}
		if out != nil {
			return out
		}
	}

	return NotFound{Path: urlPath, AttemptedPath: urlPath}
}

// resolveRoot tries all candidates in one root. A nil outcome and nil error
// means nothing matched.
func (c *Chain) resolveRoot(dir string, candidates []Candidate) (Outcome, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open content root %s: %w", dir, err)
	}
	defer root.Close()

	for _, cand := range candidates {
		name := filepath.FromSlash(cand.Name)
		body, modTime, err := readFile(root, name)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Join(dir, name), err)
		}

		if cand.Redirect {
			return Redirect{Location: escapePath(c.mount(cand.Location))}, nil
		}

		return Found{
			FilePath: filepath.Join(dir, name),
			Body:     body,
			ModTime:  modTime,
		}, nil
	}

	return nil, nil
}

// Directory finds the first root in which the URL path names a directory
func (c *Chain) Directory(urlPath string) (string, []fs.DirEntry, error) {
	p, ok := c.strip(urlPath)
	if !ok {
		return "", nil, fs.ErrNotExist
	}

	name := strings.Trim(p, "/")
	if name == "" {
		name = "."
	}
	name = filepath.FromSlash(name)

	for _, dir := range c.roots {
		root, err := os.OpenRoot(dir)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return "", nil, err
		}

		entries, err := readDir(root, name)
		root.Close()
		if err != nil {
			if isMissing(err) {
				continue
			}
			return "", nil, err
		}

		return filepath.Join(dir, name), entries, nil
	}

	return "", nil, fs.ErrNotExist
}

// strip removes the public path from a URL path, keeping the leading slash
func (c *Chain) strip(urlPath string) (string, bool) {
	if c.publicPath == "/" {
		return urlPath, true
	}
	if !strings.HasPrefix(urlPath, c.publicPath) {
		return "", false
	}
	return "/" + strings.TrimPrefix(urlPath, c.publicPath), true
}

// mount prefixes a root relative URL path with the public path
func (c *Chain) mount(p string) string {
	return strings.TrimSuffix(c.publicPath, "/") + p
}

// escapePath percent-encodes a decoded URL path for use in a Location header
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func readFile(root *os.Root, name string) ([]byte, time.Time, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	if !info.Mode().IsRegular() {
		return nil, time.Time{}, fs.ErrNotExist
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}

	return body, info.ModTime(), nil
}

func readDir(root *os.Root, name string) ([]fs.DirEntry, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fs.ErrNotExist
	}

	return f.ReadDir(-1)
}

// isMissing reports whether err means "try the next candidate"
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
