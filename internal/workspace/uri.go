package workspace

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/starford/patto/internal/apperr"
)

// URIFromPath returns the file:// URI of a filesystem path.
func URIFromPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}

// PathFromURI converts a file:// URI back to a filesystem path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidURI, uri)
	}
	p := u.Path
	// file:///C:/notes on windows
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// noteName maps an absolute path to its link name: the path relative to
// root, slash separated, without the note extension. Paths outside root
// fall back to the bare file stem.
func noteName(root, ext, path string) string {
	stem := func(s string) string {
		if ext != "" && strings.HasSuffix(s, ext) {
			return s[:len(s)-len(ext)]
		}
		return strings.TrimSuffix(s, filepath.Ext(s))
	}
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return stem(filepath.ToSlash(rel))
		}
	}
	return stem(filepath.Base(path))
}
