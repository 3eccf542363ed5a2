package assets

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// FileOrigin serves files from fsys. "/" maps to index.html. Unlike
// http.FileServer it never redirects /index.html, so the shell can be cached
// under that path.
func FileOrigin(fsys fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		f, err := fsys.Open(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "asset unavailable", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		rs, ok := f.(io.ReadSeeker)
		if !ok {
			http.Error(w, "asset unavailable", http.StatusInternalServerError)
			return
		}

		// Embedded files have no modification time, so no Last-Modified.
		http.ServeContent(w, r, name, info.ModTime(), rs)
	})
}
