package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/snappic/server/internal/models"
)

// PhotoStorageService stores uploads in a single flat directory
type PhotoStorageService struct {
	basePath          string
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

// NewPhotoStorageService creates a new PhotoStorageService
func NewPhotoStorageService(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*PhotoStorageService, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	extSet := make(map[string]bool)
	if len(allowedExtensions) == 0 {
		allowedExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}
	}
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}

	return &PhotoStorageService{
		basePath:          absPath,
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}, nil
}

// BasePath returns the absolute uploads directory
func (s *PhotoStorageService) BasePath() string {
	return s.basePath
}

// MaxFileSizeBytes returns the largest accepted upload
func (s *PhotoStorageService) MaxFileSizeBytes() int64 {
	return s.maxFileSizeBytes
}

// IsAllowed reports whether a filename carries an accepted extension
func (s *PhotoStorageService) IsAllowed(filename string) bool {
	return s.allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Store writes data under filename. The file appears complete or not at all.
func (s *PhotoStorageService) Store(filename string, data []byte) error {
	if int64(len(data)) > s.maxFileSizeBytes {
		return models.ErrFileTooLarge
	}

	fullPath, err := s.GetFullPath(filename)
	if err != nil {
		return err
	}

	return atomic.WriteFile(fullPath, bytes.NewReader(data))
}

// Delete removes a stored file. A file that is already gone is not an error.
func (s *PhotoStorageService) Delete(filename string) error {
	fullPath, err := s.GetFullPath(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetFullPath returns the absolute path for a stored filename. Anything that
// is not a plain name directly inside the uploads directory is rejected.
func (s *PhotoStorageService) GetFullPath(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	if filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || filename == ".." || filename == "." {
		return "", models.ErrPathTraversal
	}

	fullPath := filepath.Join(s.basePath, filename)
	if filepath.Dir(fullPath) != s.basePath {
		return "", models.ErrPathTraversal
	}

	return fullPath, nil
}

// Exists checks if a stored file exists
func (s *PhotoStorageService) Exists(filename string) bool {
	fullPath, err := s.GetFullPath(filename)
	if err != nil {
		return false
	}

	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// ListFiles returns the names of every regular file in the uploads directory
func (s *PhotoStorageService) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
