package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
	"github.com/snappic/server/internal/services"
)

// multipartOverhead leaves room for the comment field and part headers
const multipartOverhead = 64 << 10

// GalleryHandler handles the listing, uploads and stored images
type GalleryHandler struct {
	gallery *services.GalleryService
	storage *services.PhotoStorageService
}

// NewGalleryHandler creates a new GalleryHandler
func NewGalleryHandler(gallery *services.GalleryService, storage *services.PhotoStorageService) *GalleryHandler {
	return &GalleryHandler{
		gallery: gallery,
		storage: storage,
	}
}

// ListImages returns the current listing
// @Summary List photos
// @Description Every listed photo, newest first, with its age and fade timing
// @Tags gallery
// @Produce json
// @Success 200 {array} models.GalleryImage
// @Failure 500 {object} models.ErrorResponse
// @Router /api/images [get]
func (h *GalleryHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.gallery.List(r.Context())
	if err != nil {
		observability.WithContext(r.Context()).Errorf("Error listing photos: %v", err)
		respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Database error."})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, images)
}

// Upload accepts a photo from the upload page
// @Summary Upload a photo
// @Description Redirects to the gallery, or returns the result when the client accepts JSON
// @Tags gallery
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param comment formData string false "Caption, at most 100 characters"
// @Success 201 {object} models.UploadResult
// @Success 303 "Redirect to /gallery"
// @Failure 400 {string} string "Validation error"
// @Router /upload [post]
func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.storage.MaxFileSizeBytes()+multipartOverhead)

	if err := r.ParseMultipartForm(h.storage.MaxFileSizeBytes() + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondText(w, http.StatusBadRequest, models.ErrFileTooLarge.Error())
			return
		}
		respondText(w, http.StatusBadRequest, models.ErrNoImagePart.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		// A file input submitted empty arrives as a plain value
		if _, ok := r.MultipartForm.Value["image"]; ok {
			respondText(w, http.StatusBadRequest, models.ErrNoSelectedFile.Error())
			return
		}
		respondText(w, http.StatusBadRequest, models.ErrNoImagePart.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondText(w, http.StatusBadRequest, "Could not read upload")
		return
	}

	result, err := h.gallery.Upload(r.Context(), services.UploadInput{
		Filename: header.Filename,
		Data:     data,
		Comment:  r.FormValue("comment"),
	})
	if err != nil {
		var photoErr models.PhotoError
		if errors.As(err, &photoErr) {
			respondText(w, http.StatusBadRequest, photoErr.Error())
			return
		}
		observability.WithContext(r.Context()).Errorf("Upload failed: %v", err)
		respondText(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	if wantsJSON(r) {
		respondJSON(w, http.StatusCreated, result)
		return
	}
	http.Redirect(w, r, "/gallery", http.StatusSeeOther)
}

// ServeUpload returns the bytes of a stored image
// @Summary Stored image
// @Tags gallery
// @Param filename path string true "Stored filename"
// @Success 200 {file} file
// @Failure 404 {string} string "Not found"
// @Router /uploads/{filename} [get]
func (h *GalleryHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	fullPath, err := h.storage.GetFullPath(filename)
	if err != nil || !h.storage.Exists(filename) {
		http.NotFound(w, r)
		return
	}

	// Filenames are never reused
	w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
	http.ServeFile(w, r, fullPath)
}

func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "application/json" {
			return true
		}
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, message)
}
