package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
	"github.com/snappic/server/internal/repository"
)

// GalleryConfig holds the timing and capacity rules of the gallery
type GalleryConfig struct {
	Lifetime         time.Duration
	Fadeout          time.Duration
	MaxImages        int
	MaxCommentLength int
}

// Retention is how long a photo stays listed
func (c GalleryConfig) Retention() time.Duration {
	return c.Lifetime + c.Fadeout
}

// ChangeNotifier is told about every change to the listing
type ChangeNotifier interface {
	NotifyGalleryChanged(reason, photoID string)
}

// UploadInput is one submitted photo
type UploadInput struct {
	Filename string
	Data     []byte
	Comment  string
}

// GalleryService accepts uploads and decides what is listed. Upload, eviction
// and expiry are serialized so the capacity bound holds.
type GalleryService struct {
	photoRepo repository.PhotoRepo
	storage   *PhotoStorageService
	images    *ImageService
	hashes    *HashService
	notifier  ChangeNotifier
	metrics   *observability.GalleryMetrics
	cfg       GalleryConfig
	logger    *observability.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewGalleryService creates a new GalleryService. notifier and metrics may be nil.
func NewGalleryService(
	photoRepo repository.PhotoRepo,
	storage *PhotoStorageService,
	images *ImageService,
	hashes *HashService,
	notifier ChangeNotifier,
	metrics *observability.GalleryMetrics,
	cfg GalleryConfig,
) *GalleryService {
	return &GalleryService{
		photoRepo: photoRepo,
		storage:   storage,
		images:    images,
		hashes:    hashes,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		logger:    observability.WithField("component", "gallery"),
		now:       time.Now,
	}
}

// Config returns the gallery rules
func (s *GalleryService) Config() GalleryConfig {
	return s.cfg
}

// Upload validates, normalizes and stores a photo, evicting the oldest ones
// when the gallery is full. Every upload becomes a new listed photo with its
// own comment and timestamp; identical bytes share the stored file.
func (s *GalleryService) Upload(ctx context.Context, in UploadInput) (*models.UploadResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "gallery", "upload")
	defer span.End()

	result, err := s.upload(ctx, in)
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.RecordUpload(ctx, int64(len(in.Data)), false)
		return nil, err
	}

	observability.SetSuccess(span)
	s.metrics.RecordUpload(ctx, int64(len(in.Data)), true)
	return result, nil
}

func (s *GalleryService) upload(ctx context.Context, in UploadInput) (*models.UploadResult, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, models.ErrNoSelectedFile
	}
	if utf8.RuneCountInString(in.Comment) > s.cfg.MaxCommentLength {
		return nil, models.ErrCommentTooLong
	}
	if !s.storage.IsAllowed(in.Filename) {
		return nil, models.ErrInvalidExtension
	}
	if int64(len(in.Data)) > s.storage.MaxFileSizeBytes() {
		return nil, models.ErrFileTooLarge
	}

	hash := s.hashes.ComputeHashBytes(in.Data)

	s.mu.Lock()
	defer s.mu.Unlock()

	shared, err := s.sharedFile(ctx, hash)
	if err != nil {
		return nil, err
	}

	var processed *ProcessedImage
	if shared == nil {
		if processed, err = s.images.Normalize(in.Data, filepath.Ext(in.Filename)); err != nil {
			return nil, err
		}
	}

	evicted, err := s.makeRoom(ctx)
	if err != nil {
		return nil, err
	}

	// Eviction may have taken the last record holding the shared file
	if shared != nil && !s.storage.Exists(shared.Filename) {
		shared = nil
		if processed, err = s.images.Normalize(in.Data, filepath.Ext(in.Filename)); err != nil {
			return nil, err
		}
	}

	var photo *models.Photo
	if shared != nil {
		photo, err = models.NewPhoto(filepath.Ext(shared.Filename), in.Comment, hash, shared.FileSize)
		if err != nil {
			return nil, err
		}
		photo.Filename = shared.Filename
	} else {
		photo, err = models.NewPhoto(processed.Ext, in.Comment, hash, int64(len(processed.Data)))
		if err != nil {
			return nil, err
		}
		if err := s.storage.Store(photo.Filename, processed.Data); err != nil {
			return nil, fmt.Errorf("store file: %w", err)
		}
	}
	photo.UploadedAt = s.now().UTC()

	if err := s.photoRepo.Add(ctx, photo); err != nil {
		if shared == nil {
			s.storage.Delete(photo.Filename)
		}
		return nil, fmt.Errorf("save photo: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"photo_id":    photo.ID,
		"size":        photo.FileSize,
		"shared_file": shared != nil,
	}).Info("Photo uploaded")
	s.notify(models.ChangeUploaded, photo.ID)

	result := models.NewUploadResult(photo, evicted)
	result.SharedFile = shared != nil
	return &result, nil
}

// sharedFile returns a listed photo with the same content whose file is still
// on disk, or nil
func (s *GalleryService) sharedFile(ctx context.Context, hash string) (*models.Photo, error) {
	existing, err := s.photoRepo.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup hash: %w", err)
	}
	if existing == nil || !s.storage.Exists(existing.Filename) {
		return nil, nil
	}
	return existing, nil
}

// makeRoom deletes the oldest photos until one more fits
func (s *GalleryService) makeRoom(ctx context.Context) ([]string, error) {
	var evicted []string
	for {
		count, err := s.photoRepo.Count(ctx)
		if err != nil {
			return evicted, fmt.Errorf("count photos: %w", err)
		}
		if count < s.cfg.MaxImages {
			return evicted, nil
		}

		oldest, err := s.photoRepo.Oldest(ctx)
		if err != nil {
			return evicted, fmt.Errorf("find oldest photo: %w", err)
		}
		if oldest == nil {
			return evicted, nil
		}
		if err := s.remove(ctx, oldest, models.ChangeEvicted); err != nil {
			return evicted, err
		}
		evicted = append(evicted, oldest.ID)
	}
}

// List returns every listed photo, newest first, with ages computed now
func (s *GalleryService) List(ctx context.Context) ([]models.GalleryImage, error) {
	photos, err := s.photoRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	images := make([]models.GalleryImage, 0, len(photos))
	for _, p := range photos {
		images = append(images, p.ToGalleryImage(now, s.cfg.Lifetime, s.cfg.Fadeout))
	}
	return images, nil
}

// Count returns the number of listed photos
func (s *GalleryService) Count(ctx context.Context) (int, error) {
	return s.photoRepo.Count(ctx)
}

// Expire deletes every photo whose lifetime and fade-out have both elapsed
func (s *GalleryService) Expire(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photos, err := s.photoRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	retention := s.cfg.Retention().Seconds()
	removed := 0
	for _, p := range photos {
		if p.Age(now) <= retention {
			continue
		}
		if err := s.remove(ctx, p, models.ChangeExpired); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// remove deletes the record, then the file once no other record shares it.
// A file that cannot be deleted is logged and the record stays deleted.
func (s *GalleryService) remove(ctx context.Context, p *models.Photo, reason string) error {
	logger := s.logger.WithContext(ctx).WithField("photo_id", p.ID)

	if _, err := s.photoRepo.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("delete photo %s: %w", p.ID, err)
	}

	refs, err := s.photoRepo.CountByFilename(ctx, p.Filename)
	if err != nil {
		logger.Warnf("Error counting references to %s: %v", p.Filename, err)
	} else if refs == 0 {
		if err := s.storage.Delete(p.Filename); err != nil {
			logger.Warnf("Error removing file %s: %v", p.Filename, err)
		}
	}

	metricReason := "expired"
	if reason == models.ChangeEvicted {
		metricReason = "evicted"
	}
	s.metrics.RecordRemoval(ctx, metricReason, p.FileSize)

	logger.Infof("Photo removed (%s)", reason)
	s.notify(reason, p.ID)
	return nil
}

func (s *GalleryService) notify(reason, photoID string) {
	if s.notifier != nil {
		s.notifier.NotifyGalleryChanged(reason, photoID)
	}
}
