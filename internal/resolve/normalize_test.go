package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "root", raw: "/", want: "/"},
		{name: "empty", raw: "", want: "/"},
		{name: "plain file", raw: "/app.js", want: "/app.js"},
		{name: "query dropped", raw: "/app.js?v=1", want: "/app.js"},
		{name: "fragment dropped", raw: "/docs/#top", want: "/docs/"},
		{name: "encoded space", raw: "/my%20file.txt", want: "/my file.txt"},
		{name: "trailing slash kept", raw: "/docs/", want: "/docs/"},
		{name: "redundant separators", raw: "//docs///a.txt", want: "/docs/a.txt"},
		{name: "dot segments", raw: "/docs/./a/../b.txt", want: "/docs/b.txt"},
		{name: "traversal", raw: "/../../etc/passwd", want: "/etc/passwd"},
		{name: "encoded traversal", raw: "/%2e%2e/%2e%2e/etc/passwd", want: "/etc/passwd"},
		{name: "encoded slash traversal", raw: "/..%2f..%2fetc%2fpasswd", want: "/etc/passwd"},
		{name: "backslash traversal", raw: "/..\\..\\etc\\passwd", want: "/etc/passwd"},
		{name: "relative input", raw: "a/b", want: "/a/b"},
		{name: "query encoded traversal ignored", raw: "/a?x=/../../b", want: "/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	for _, raw := range []string{"/%zz", "/a%", "/a%2", "/nul%00byte"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)

			var malformed *MalformedPathError
			require.True(t, errors.As(err, &malformed), "Normalize(%q) error = %v, want MalformedPathError", raw, err)
		})
	}
}

func TestNormalize_ConfinedToRoot(t *testing.T) {
	root := t.TempDir()

	inputs := []string{
		"/../../etc/passwd",
		"/%2e%2e/%2e%2e/etc/passwd",
		"/a/b/../../../../x",
		"/..",
		"/./../.././",
		"/%2e%2e%2f%2e%2e%2f",
		"..",
		"/a/..%5c..%5c..%5cwin.ini",
	}

	for _, raw := range inputs {
		got, err := Normalize(raw)
		require.NoError(t, err)
		require.NotContains(t, strings.Split(got, "/"), "..")

		joined := filepath.Join(root, filepath.FromSlash(got))
		rel, err := filepath.Rel(root, joined)
		require.NoError(t, err)
		require.False(t, strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || rel == "..",
			"Normalize(%q) = %q escapes root", raw, got)
	}
}
