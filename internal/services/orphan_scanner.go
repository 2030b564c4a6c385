package services

import (
	"context"
	"fmt"
	"time"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
)

// ScanResult summarizes one pass over the uploads directory
type ScanResult struct {
	FilesScanned   int           `json:"filesScanned"`
	OrphansRemoved int           `json:"orphansRemoved"`
	MissingRemoved int           `json:"missingRemoved"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// OrphanScanner brings the uploads directory and the photo table back in
// line after a crash: files no record points at are deleted, and records
// whose file has vanished are dropped from the listing.
type OrphanScanner struct {
	gallery *GalleryService
	logger  *observability.Logger
}

// NewOrphanScanner creates a scanner over the gallery's storage
func NewOrphanScanner(gallery *GalleryService) *OrphanScanner {
	return &OrphanScanner{
		gallery: gallery,
		logger:  observability.WithField("component", "orphan-scanner"),
	}
}

// Scan runs one pass. It holds the gallery lock so no upload lands between
// the directory listing and the table read.
func (s *OrphanScanner) Scan(ctx context.Context) (*ScanResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "gallery", "scan")
	defer span.End()

	start := time.Now()
	g := s.gallery

	g.mu.Lock()
	defer g.mu.Unlock()

	files, err := g.storage.ListFiles()
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	photos, err := g.photoRepo.ListAll(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list photos: %w", err)
	}

	result := &ScanResult{FilesScanned: len(files), Errors: []string{}}

	known := make(map[string]bool, len(photos))
	for _, p := range photos {
		known[p.Filename] = true
	}

	for _, name := range files {
		if known[name] {
			continue
		}
		if err := g.storage.Delete(name); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		s.logger.Debugf("Removed orphan file %s", name)
		result.OrphansRemoved++
	}

	for _, p := range photos {
		if g.storage.Exists(p.Filename) {
			continue
		}
		if err := g.remove(ctx, p, models.ChangeMissing); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.MissingRemoved++
	}

	result.Duration = time.Since(start)
	observability.SetSuccess(span)

	if result.OrphansRemoved > 0 || result.MissingRemoved > 0 {
		s.logger.Infof("Scan complete: %d files, %d orphans removed, %d missing records dropped",
			result.FilesScanned, result.OrphansRemoved, result.MissingRemoved)
	}
	return result, nil
}
