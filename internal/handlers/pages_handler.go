package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
	"github.com/snappic/server/internal/services"
)

// PagesHandler renders the upload page and the gallery screen
type PagesHandler struct {
	templates      *template.Template
	gallery        *services.GalleryService
	pollIntervalMs int
}

// NewPagesHandler creates a new PagesHandler
func NewPagesHandler(templates *template.Template, gallery *services.GalleryService, pollIntervalMs int) *PagesHandler {
	return &PagesHandler{
		templates:      templates,
		gallery:        gallery,
		pollIntervalMs: pollIntervalMs,
	}
}

// Index renders the upload page
func (h *PagesHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "index.html", map[string]interface{}{
		"MaxCommentLength": h.gallery.Config().MaxCommentLength,
	})
}

// Gallery renders the gallery with the current listing so the first paint
// needs no round trip
func (h *PagesHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	images, err := h.gallery.List(r.Context())
	if err != nil {
		observability.WithContext(r.Context()).Warnf("Rendering empty gallery: %v", err)
		images = []models.GalleryImage{}
	}

	h.render(w, r, "gallery.html", map[string]interface{}{
		"Images":         images,
		"PollIntervalMs": h.pollIntervalMs,
	})
}

func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		observability.WithContext(r.Context()).Errorf("Error rendering %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
