package models

import "time"

// UploadResult is returned after uploading a photo
type UploadResult struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Comment    string    `json:"comment"`
	UploadedAt time.Time `json:"uploadedAt"`
	SharedFile bool      `json:"sharedFile"`
	Evicted    []string  `json:"evicted,omitempty"`
}

// NewUploadResult creates a result for a newly uploaded photo
func NewUploadResult(p *Photo, evicted []string) UploadResult {
	return UploadResult{
		ID:         p.ID,
		Filename:   p.Filename,
		Comment:    p.Comment,
		UploadedAt: p.UploadedAt,
		Evicted:    evicted,
	}
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Photos    int       `json:"photos"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// WSMessage is the envelope of every websocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Websocket message types
const (
	WSTypeGalleryChanged = "gallery_changed"
	WSTypePing           = "ping"
	WSTypePong           = "pong"
)

// Reasons carried by a gallery_changed payload
const (
	ChangeUploaded = "photo_uploaded"
	ChangeExpired  = "photo_expired"
	ChangeEvicted  = "photo_evicted"
	ChangeMissing  = "photo_missing"
)

// GalleryChangedPayload tells listeners the listing changed and why
type GalleryChangedPayload struct {
	Reason  string `json:"reason"`
	PhotoID string `json:"photoId"`
}
