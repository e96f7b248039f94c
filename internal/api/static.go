package api

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// spaHandler serves the built client from dir. Paths that do not name a file
// get index.html so client-side routes survive a reload.
func (s *Server) spaHandler(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.writeError(w, http.StatusNotFound, "Not found", "")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.writeError(w, http.StatusNotFound, "Not found", "")
			return
		}

		if f, err := root.Open(path.Clean("/" + r.URL.Path)); err == nil {
			info, statErr := f.Stat()
			f.Close()
			if statErr == nil && !info.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, index)
	}
}
