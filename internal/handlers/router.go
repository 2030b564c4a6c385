package handlers

import (
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/snappic/server/internal/observability"
	"github.com/snappic/server/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterDeps is everything the HTTP surface needs
type RouterDeps struct {
	Gallery        *services.GalleryService
	Storage        *services.PhotoStorageService
	Hub            *services.WebSocketHub
	Templates      *template.Template
	Static         fs.FS
	OpenAPI        []byte
	PollIntervalMs int
	Logger         *observability.Logger
	// Metrics may be nil when telemetry is disabled
	Metrics *observability.HTTPMetrics
}

// NewRouter builds the chi router with middleware and every route
func NewRouter(deps RouterDeps) http.Handler {
	galleryHandler := NewGalleryHandler(deps.Gallery, deps.Storage)
	pagesHandler := NewPagesHandler(deps.Templates, deps.Gallery, deps.PollIntervalMs)
	healthHandler := NewHealthHandler(deps.Gallery)
	wsHandler := NewWebSocketHandler(deps.Hub)

	logger := deps.Logger
	if logger == nil {
		logger = observability.GetLogger()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware())
	if deps.Metrics != nil {
		r.Use(observability.MetricsMiddleware(deps.Metrics))
	}

	// Pages
	r.Get("/", pagesHandler.Index)
	r.Get("/gallery", pagesHandler.Gallery)

	// Gallery
	r.Get("/api/images", galleryHandler.ListImages)
	r.Post("/upload", galleryHandler.Upload)
	r.Get("/uploads/{filename}", galleryHandler.ServeUpload)
	r.Get("/ws", wsHandler.HandleConnection)

	// Health
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", VersionHandler)

	// Static assets
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(deps.Static))))

	// API docs
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(deps.OpenAPI)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	return r
}
