package resolve

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFiles creates files below dir, keyed by slash separated relative path
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}
}

func newChain(t *testing.T, roots []string, opts ChainOptions) *Chain {
	t.Helper()

	chain, err := NewChain(roots, opts)
	require.NoError(t, err)
	return chain
}

func TestNewChain_RequiresRoot(t *testing.T) {
	_, err := NewChain(nil, ChainOptions{})
	require.Error(t, err)
}

func TestChain_Found(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"app.js": "console.log(1)"})

	out := newChain(t, []string{dir}, ChainOptions{}).Resolve("/app.js")

	found, ok := out.(Found)
	require.True(t, ok, "Resolve() = %#v, want Found", out)
	require.Equal(t, "console.log(1)", string(found.Body))
	require.Equal(t, filepath.Join(dir, "app.js"), found.FilePath)
	require.False(t, found.ModTime.IsZero())
}

func TestChain_Precedence(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, first, map[string]string{"shared.txt": "first"})
	writeFiles(t, second, map[string]string{"shared.txt": "second", "only.txt": "only second"})

	chain := newChain(t, []string{first, second}, ChainOptions{})

	found, ok := chain.Resolve("/shared.txt").(Found)
	require.True(t, ok)
	require.Equal(t, "first", string(found.Body))

	found, ok = chain.Resolve("/only.txt").(Found)
	require.True(t, ok)
	require.Equal(t, "only second", string(found.Body))
}

func TestChain_NotFound(t *testing.T) {
	chain := newChain(t, []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")}, ChainOptions{})

	out := chain.Resolve("/nope.txt")
	require.Equal(t, NotFound{Path: "/nope.txt", AttemptedPath: "/nope.txt"}, out)
}

func TestChain_FileAsDirectoryIsMissing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"file.txt": "x"})

	out := newChain(t, []string{dir}, ChainOptions{}).Resolve("/file.txt/inner")
	_, ok := out.(NotFound)
	require.True(t, ok, "Resolve() = %#v, want NotFound", out)
}

func TestChain_DirectoryIndex(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"index.html":      "root index",
		"docs/index.html": "docs index",
		"page/index.html": "page index",
	})

	chain := newChain(t, []string{dir}, ChainOptions{})

	found, ok := chain.Resolve("/docs/").(Found)
	require.True(t, ok)
	require.Equal(t, "docs index", string(found.Body))

	found, ok = chain.Resolve("/").(Found)
	require.True(t, ok)
	require.Equal(t, "root index", string(found.Body))

	require.Equal(t, Redirect{Location: "/page/index.html"}, chain.Resolve("/page"))
}

func TestChain_RedirectIsEscaped(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a?b/index.html": "question",
		"c#d/index.html": "hash",
		"e f/index.html": "space",
	})

	chain := newChain(t, []string{dir}, ChainOptions{})

	tests := []struct {
		path string
		want string
	}{
		{path: "/a?b", want: "/a%3Fb/index.html"},
		{path: "/c#d", want: "/c%23d/index.html"},
		{path: "/e f", want: "/e%20f/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, Redirect{Location: tt.want}, chain.Resolve(tt.path))
		})
	}
}

func TestChain_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"about.html":       "about",
		"blog":             "exact",
		"blog.html":        "blog html",
		"guide/index.html": "guide",
	})

	chain := newChain(t, []string{dir}, ChainOptions{Extensions: []string{".html"}})

	found, ok := chain.Resolve("/about").(Found)
	require.True(t, ok)
	require.Equal(t, "about", string(found.Body))

	found, ok = chain.Resolve("/blog").(Found)
	require.True(t, ok)
	require.Equal(t, "exact", string(found.Body))

	require.Equal(t, Redirect{Location: "/guide/index.html"}, chain.Resolve("/guide"))
}

func TestChain_ExtensionInLaterRootLosesToEarlierIndex(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, first, map[string]string{"page/index.html": "first"})
	writeFiles(t, second, map[string]string{"page": "second"})

	chain := newChain(t, []string{first, second}, ChainOptions{})

	require.Equal(t, Redirect{Location: "/page/index.html"}, chain.Resolve("/page"))
}

func TestChain_PublicPath(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"app.js":          "app",
		"page/index.html": "page",
	})

	chain := newChain(t, []string{dir}, ChainOptions{PublicPath: "static"})
	require.Equal(t, "/static/", chain.PublicPath())

	found, ok := chain.Resolve("/static/app.js").(Found)
	require.True(t, ok)
	require.Equal(t, "app", string(found.Body))

	_, ok = chain.Resolve("/app.js").(NotFound)
	require.True(t, ok)

	require.Equal(t, Redirect{Location: "/static/page/index.html"}, chain.Resolve("/static/page"))
	require.Equal(t, Redirect{Location: "/static/"}, chain.Resolve("/static"))
}

func TestChain_PermissionErrorStopsChain(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, first, map[string]string{"secret.txt": "first"})
	writeFiles(t, second, map[string]string{"secret.txt": "second"})

	if err := os.Chmod(filepath.Join(first, "secret.txt"), 0); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	out := newChain(t, []string{first, second}, ChainOptions{}).Resolve("/secret.txt")

	serverErr, ok := out.(ServerError)
	require.True(t, ok, "Resolve() = %#v, want ServerError", out)
	require.ErrorIs(t, serverErr.Err, os.ErrPermission)
}

func TestChain_SymlinkOutsideRootIsNotServed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	outside := t.TempDir()
	writeFiles(t, outside, map[string]string{"passwd": "secret"})

	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "passwd"), filepath.Join(dir, "link")); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}

	out := newChain(t, []string{dir}, ChainOptions{}).Resolve("/link")

	_, found := out.(Found)
	require.False(t, found, "Resolve() served a file outside the root")
}

func TestChain_TraversalStaysInsideRoots(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	writeFiles(t, parent, map[string]string{
		"secret.txt":        "secret",
		"public/index.html": "index",
	})

	chain := newChain(t, []string{root}, ChainOptions{})

	for _, raw := range []string{"/../secret.txt", "/%2e%2e/secret.txt", "/..%2fsecret.txt", "/a/../../secret.txt"} {
		p, err := Normalize(raw)
		require.NoError(t, err)

		out := chain.Resolve(p)
		if found, ok := out.(Found); ok {
			rel, err := filepath.Rel(root, found.FilePath)
			require.NoError(t, err)
			require.NotContains(t, rel, "..")
		}
		_, ok := out.(NotFound)
		require.True(t, ok, "Resolve(%q) = %#v, want NotFound", raw, out)
	}
}

func TestChain_Directory(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, second, map[string]string{"assets/a.css": "a", "assets/b.css": "b"})

	chain := newChain(t, []string{first, second}, ChainOptions{})

	dir, entries, err := chain.Directory("/assets/")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(second, "assets"), dir)
	require.Len(t, entries, 2)

	_, _, err = chain.Directory("/assets/a.css")
	require.ErrorIs(t, err, os.ErrNotExist)
}
