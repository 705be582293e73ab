// Package resources embeds the static assets of the public site.
package resources

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed assets/css/*.css
var assetsFS embed.FS

// Assets returns the embedded assets filesystem, rooted at assets/.
func Assets() fs.FS {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		panic("failed to get assets subdirectory: " + err.Error())
	}
	return sub
}

// AssetsHandler serves the embedded assets with prefix stripped from the
// request path. Responses may be cached for a day.
func AssetsHandler(prefix string) http.Handler {
	fileServer := http.FileServer(http.FS(Assets()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + path
		w.Header().Set("Cache-Control", "public, max-age=86400")
		fileServer.ServeHTTP(w, r2)
	})
}
