package services

import (
	"encoding/hex"
	"io"
	"regexp"
	"strings"

	"lukechampine.com/blake3"
)

// HashService computes content hashes used to spot repeated uploads
type HashService struct {
	hashRegex *regexp.Regexp
}

// NewHashService creates a new HashService
func NewHashService() *HashService {
	return &HashService{
		hashRegex: regexp.MustCompile(`^[a-f0-9]{64}$`),
	}
}

// ComputeHash computes the 256-bit BLAKE3 hash of a reader
func (s *HashService) ComputeHash(r io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeHashBytes computes the 256-bit BLAKE3 hash of bytes
func (s *HashService) ComputeHashBytes(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NormalizeHash normalizes a hash string to lowercase
func (s *HashService) NormalizeHash(hash string) string {
	normalized := strings.TrimSpace(hash)

	if strings.HasPrefix(strings.ToLower(normalized), "blake3:") {
		normalized = normalized[len("blake3:"):]
	}

	return strings.ToLower(normalized)
}

// IsValidHash checks if a string looks like a hash produced by this service
func (s *HashService) IsValidHash(hash string) bool {
	if strings.TrimSpace(hash) == "" {
		return false
	}
	return s.hashRegex.MatchString(s.NormalizeHash(hash))
}
