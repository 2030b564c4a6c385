package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snappic/server/internal/config"
	"github.com/snappic/server/internal/handlers"
	"github.com/snappic/server/internal/observability"
	"github.com/snappic/server/internal/repository"
	"github.com/snappic/server/internal/services"
	"github.com/snappic/server/internal/web"
)

func main() {
	logger := observability.GetLogger()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("snappic-server", handlers.Version))
	if err != nil {
		logger.Warnf("Telemetry unavailable: %v", err)
	}

	// Initialize database and repository
	var (
		db     *sql.DB
		system string
	)
	if cfg.UsePostgres() {
		logger.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		system = "postgresql"
	} else {
		logger.Infof("Using SQLite database at %s", cfg.DatabasePath)
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		system = "sqlite"
	}
	if err != nil {
		logger.Errorf("Failed to initialize %s database: %v", system, err)
		os.Exit(1)
	}

	tracedDB, err := observability.NewTraceDB(db, system)
	if err != nil {
		logger.Errorf("Failed to instrument database: %v", err)
		os.Exit(1)
	}
	defer tracedDB.Close()

	var photoRepo repository.PhotoRepo
	if cfg.UsePostgres() {
		photoRepo = repository.NewPhotoRepositoryPostgres(tracedDB)
	} else {
		photoRepo = repository.NewPhotoRepository(tracedDB)
	}

	// Initialize services
	storageService, err := services.NewPhotoStorageService(
		cfg.PhotoStorage.BasePath,
		cfg.PhotoStorage.AllowedExtensions,
		cfg.PhotoStorage.MaxFileSizeMB,
	)
	if err != nil {
		logger.Errorf("Failed to initialize storage service: %v", err)
		os.Exit(1)
	}

	galleryMetrics, err := observability.NewGalleryMetrics()
	if err != nil {
		logger.Warnf("Gallery metrics disabled: %v", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		logger.Warnf("HTTP metrics disabled: %v", err)
	}

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	galleryService := services.NewGalleryService(
		photoRepo,
		storageService,
		services.NewImageService(cfg.PhotoStorage.MaxDimension),
		services.NewHashService(),
		hub,
		galleryMetrics,
		services.GalleryConfig{
			Lifetime:         cfg.Gallery.Lifetime(),
			Fadeout:          cfg.Gallery.Fadeout(),
			MaxImages:        cfg.Gallery.MaxImages,
			MaxCommentLength: cfg.Gallery.MaxCommentLength,
		},
	)

	if res, err := services.NewOrphanScanner(galleryService).Scan(ctx); err != nil {
		logger.Warnf("Startup scan failed: %v", err)
	} else if len(res.Errors) > 0 {
		logger.Warnf("Startup scan finished with %d errors", len(res.Errors))
	}

	sweeper := services.NewExpirySweeper(galleryService, cfg.Gallery.CleanupInterval())
	sweeper.Start()
	defer sweeper.Stop()

	templates, err := web.Templates()
	if err != nil {
		logger.Errorf("Failed to parse templates: %v", err)
		os.Exit(1)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Gallery:        galleryService,
		Storage:        storageService,
		Hub:            hub,
		Templates:      templates,
		Static:         web.Static(),
		OpenAPI:        web.OpenAPI(),
		PollIntervalMs: cfg.Viewer.PollIntervalMs,
		Logger:         logger,
		Metrics:        httpMetrics,
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Snappic server starting on %s", cfg.ServerAddress)
		logger.Infof("Upload folder: %s", cfg.PhotoStorage.BasePath)
		logger.Infof("Photos live %s and fade over %s, at most %d at once",
			cfg.Gallery.Lifetime(), cfg.Gallery.Fadeout(), cfg.Gallery.MaxImages)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Server error: %v", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Telemetry shutdown: %v", err)
		}
	}

	logger.Info("Server stopped")
}
