package repository

import (
	"context"
	"strings"

	"github.com/snappic/server/internal/models"
)

// PhotoRepository handles photo persistence for SQLite
type PhotoRepository struct {
	db dbtx
}

// NewPhotoRepository creates a new PhotoRepository
func NewPhotoRepository(db dbtx) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = ?`
	return scanPhoto(r.db.QueryRowContext(ctx, query, id))
}

// GetByHash retrieves the newest photo with the given file hash
func (r *PhotoRepository) GetByHash(ctx context.Context, hash string) (*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos WHERE file_hash = ?
		ORDER BY uploaded_at DESC
		LIMIT 1
	`
	return scanPhoto(r.db.QueryRowContext(ctx, query, strings.ToLower(hash)))
}

// ListAll retrieves every photo, newest first
func (r *PhotoRepository) ListAll(ctx context.Context) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY uploaded_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanPhotos(rows)
}

// Oldest retrieves the earliest upload
func (r *PhotoRepository) Oldest(ctx context.Context) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY uploaded_at ASC, id LIMIT 1`
	return scanPhoto(r.db.QueryRowContext(ctx, query))
}

// Count returns the total number of photos
func (r *PhotoRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&count)
	return count, err
}

// CountByFilename returns how many photos share a stored file
func (r *PhotoRepository) CountByFilename(ctx context.Context, filename string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos WHERE filename = ?", filename).Scan(&count)
	return count, err
}

// Add inserts a new photo
func (r *PhotoRepository) Add(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (` + photoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		photo.ID,
		photo.Filename,
		photo.Comment,
		strings.ToLower(photo.FileHash),
		photo.FileSize,
		photo.UploadedAt.UTC(),
	)
	return err
}

// Delete removes a photo by ID
func (r *PhotoRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
