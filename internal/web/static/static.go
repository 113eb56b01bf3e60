// Package static embeds the dashboard page.
package static

import (
	"embed"
	"net/http"
)

//go:embed index.html
var files embed.FS

// Handler serves the embedded dashboard assets.
func Handler() http.Handler {
	return http.FileServer(http.FS(files))
}
