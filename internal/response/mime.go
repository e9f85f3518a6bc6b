package response

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultContentType is used when the extension is unknown
const DefaultContentType = "text/plain; charset=utf-8"

// Types maps file extensions to content types. Configured types take
// precedence over the built-in table.
type Types struct {
	custom map[string]string
}

// NewTypes creates a lookup table with the given overrides. Keys may be
// given with or without the leading dot.
func NewTypes(custom map[string]string) *Types {
	t := &Types{custom: make(map[string]string, len(custom))}
	for ext, typ := range custom {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		t.custom[ext] = typ
	}
	return t
}

// ContentType returns the content type for a file name
func (t *Types) ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return DefaultContentType
	}

	if typ, ok := t.custom[ext]; ok {
		return typ
	}
	if typ := mime.TypeByExtension(ext); typ != "" {
		return typ
	}

	return DefaultContentType
}
