package repository

import (
	"context"
	"database/sql"

	"github.com/snappic/server/internal/models"
)

// PhotoRepo defines the interface for photo persistence operations
type PhotoRepo interface {
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	// GetByHash returns the newest photo with the given content hash
	GetByHash(ctx context.Context, hash string) (*models.Photo, error)
	// ListAll returns every photo, newest first
	ListAll(ctx context.Context) ([]*models.Photo, error)
	// Oldest returns the earliest upload, or nil when there is none
	Oldest(ctx context.Context) (*models.Photo, error)
	Count(ctx context.Context) (int, error)
	// CountByFilename returns how many photos reference a stored file
	CountByFilename(ctx context.Context, filename string) (int, error)
	Add(ctx context.Context, photo *models.Photo) error
	Delete(ctx context.Context, id string) (bool, error)
}

// dbtx is satisfied by *sql.DB and *observability.TraceDB
type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const photoColumns = `id, filename, comment, file_hash, file_size, uploaded_at`

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID,
		&photo.Filename,
		&photo.Comment,
		&photo.FileHash,
		&photo.FileSize,
		&photo.UploadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	photo.UploadedAt = photo.UploadedAt.UTC()
	return &photo, nil
}

func scanPhotos(rows *sql.Rows) ([]*models.Photo, error) {
	defer rows.Close()

	photos := []*models.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

var (
	_ PhotoRepo = (*PhotoRepository)(nil)
	_ PhotoRepo = (*PhotoRepositoryPostgres)(nil)
)
