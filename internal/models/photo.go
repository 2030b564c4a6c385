package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Photo is an accepted upload that stays listed until its lifetime and
// fade-out have elapsed or it is evicted to make room for a newer one.
type Photo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Comment    string    `json:"comment"`
	FileHash   string    `json:"fileHash"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// NewPhoto creates a new Photo with a fresh ID. The stored filename is the ID
// plus the normalized extension, so nothing user-supplied reaches the disk path.
func NewPhoto(ext, comment, fileHash string, fileSize int64) (*Photo, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return nil, ErrEmptyExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.TrimSpace(fileHash) == "" {
		return nil, ErrEmptyHash
	}
	if fileSize <= 0 {
		return nil, ErrInvalidFileSize
	}

	id := uuid.New().String()
	return &Photo{
		ID:         id,
		Filename:   id + ext,
		Comment:    comment,
		FileHash:   strings.ToLower(fileHash),
		FileSize:   fileSize,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Age returns the seconds elapsed between the upload and now, never negative
func (p *Photo) Age(now time.Time) float64 {
	age := now.Sub(p.UploadedAt).Seconds()
	if age < 0 {
		return 0
	}
	return age
}

// ToGalleryImage projects the photo onto the listing wire format
func (p *Photo) ToGalleryImage(now time.Time, lifetime, fadeout time.Duration) GalleryImage {
	return GalleryImage{
		ID:              p.ID,
		Filename:        p.Filename,
		Comment:         p.Comment,
		Age:             p.Age(now),
		Lifetime:        lifetime.Seconds(),
		FadeoutDuration: fadeout.Seconds(),
	}
}

// GalleryImage is one entry of GET /api/images
type GalleryImage struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	Comment         string  `json:"comment"`
	Age             float64 `json:"age"`
	Lifetime        float64 `json:"lifetime"`
	FadeoutDuration float64 `json:"fadeout_duration"`
}

// UnmarshalJSON accepts the id as a JSON string or number. Numbers keep
// their literal text, so 1 becomes "1".
func (g *GalleryImage) UnmarshalJSON(data []byte) error {
	type plain GalleryImage
	var wire struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	id, err := decodeID(wire.ID)
	if err != nil {
		return err
	}

	*g = GalleryImage(wire.plain)
	g.ID = id
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or a number: %w", err)
	}
	return n.String(), nil
}

// Errors
type PhotoError struct {
	Message string
}

func (e PhotoError) Error() string {
	return e.Message
}

var (
	ErrNoImagePart      = PhotoError{"No image part"}
	ErrNoSelectedFile   = PhotoError{"No selected file"}
	ErrCommentTooLong   = PhotoError{"Comment is too long"}
	ErrInvalidExtension = PhotoError{"Invalid file type"}
	ErrFileTooLarge     = PhotoError{"File is too large"}
	ErrUndecodableImage = PhotoError{"File is not a readable image"}
	ErrEmptyExtension   = PhotoError{"file extension cannot be empty"}
	ErrEmptyHash        = PhotoError{"file hash cannot be empty"}
	ErrInvalidFileSize  = PhotoError{"file size must be positive"}
	ErrPhotoNotFound    = PhotoError{"photo not found"}
	ErrPathTraversal    = PhotoError{"invalid path - path traversal detected"}
)
