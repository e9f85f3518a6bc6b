package resolve

import "strings"

// Candidate is one relative file path to try inside a content root
type Candidate struct {
	// Name is the slash separated path relative to the root, without a leading slash
	Name string

	// Redirect is set when a match must be answered with a redirect to
	// Location instead of the file content
	Redirect bool
	Location string
}

// Candidates expands a normalized path into the ordered list of files that
// may satisfy it inside a single root. Index names form the outer loop (the
// literal path first), extensions the inner loop (the exact name first).
//
// A path ending in "/" only tries index names. A path without trailing slash
// that is satisfied by an index file yields a redirect to that file, so
// relative URLs inside the document keep working. The root path "/" is the
// exception and is always served directly.
func Candidates(p string, extensions, indexNames []string) []Candidate {
	exts := withExact(extensions)
	rel := strings.TrimPrefix(p, "/")
	dir := rel == "" || strings.HasSuffix(rel, "/")

	var out []Candidate

	if !dir {
		for _, ext := range exts {
			out = append(out, Candidate{Name: rel + ext})
		}
	}

	for _, index := range indexNames {
		if index == "" {
			continue
		}
		for _, ext := range exts {
			if dir {
				out = append(out, Candidate{Name: rel + index + ext})
				continue
			}
			out = append(out, Candidate{
				Name:     rel + "/" + index + ext,
				Redirect: true,
				Location: p + "/" + index + ext,
			})
		}
	}

	return out
}

// withExact returns the extension list with the empty extension first and
// duplicates removed
func withExact(extensions []string) []string {
	exts := make([]string, 0, len(extensions)+1)
	exts = append(exts, "")
	seen := map[string]bool{"": true}

	for _, ext := range extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}

	return exts
}
