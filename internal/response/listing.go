package response

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gleicon/devserve/internal/resolve"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Path}}</title>
</head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>
{{- if .Parent}}
<li><a href="{{.Parent}}">../</a></li>
{{- end}}
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

type listingPage struct {
	Path    string
	Parent  string
	Entries []listingEntry
}

// listing renders a directory index. Directories sort first, then by name.
func (wr *Writer) listing(w http.ResponseWriter, o resolve.Listing) {
	base := o.Path
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	page := listingPage{Path: base}
	if base != "/" {
		parent := path.Dir(strings.TrimSuffix(base, "/"))
		if parent != "/" {
			parent += "/"
		}
		page.Parent = escapePath(parent)
	}

	entries := append(o.Entries[:0:0], o.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		page.Entries = append(page.Entries, listingEntry{Name: name, Href: escapePath(base + name)})
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, page); err != nil {
		wr.logger.Error().Err(err).Str("dir", o.Dir).Msg("failed to render directory listing")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// escapePath percent-encodes a decoded URL path for use in a link
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
