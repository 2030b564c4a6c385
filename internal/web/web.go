// Package web holds the pages and static assets served to phones and the
// gallery screen.
package web

import (
	"embed"
	"html/template"
	"io/fs"

	"github.com/snappic/server/internal/gallery"
	"github.com/snappic/server/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

//go:embed openapi.json
var openAPI []byte

// Templates parses the page templates
func Templates() (*template.Template, error) {
	funcs := template.FuncMap{
		"opacity": func(img models.GalleryImage) float64 {
			return gallery.Opacity(img.Age, img.Lifetime, img.FadeoutDuration)
		},
	}
	return template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// Static returns the static asset tree rooted at static/
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// static/ is embedded at build time
		panic(err)
	}
	return sub
}

// OpenAPI returns the API description served under /swagger/doc.json
func OpenAPI() []byte {
	return openAPI
}
