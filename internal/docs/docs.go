// Package docs serves the embedded OpenAPI document and a Swagger UI page.
package docs

import (
	"embed"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed swagger.html openapi.yaml
var content embed.FS

// Routes serves the Swagger UI at the mount point and the raw document at
// /openapi.yaml below it.
func Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", serveEmbedded("swagger.html", "text/html; charset=utf-8"))
	r.Get("/openapi.yaml", serveEmbedded("openapi.yaml", "application/yaml"))
	return r
}

func serveEmbedded(name, contentType string) http.HandlerFunc {
	data, err := content.ReadFile(name)
	if err != nil {
		panic("docs: missing embedded file " + name)
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(data)
	}
}
