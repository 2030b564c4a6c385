package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/snappic/server/internal/models"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// ProcessedImage is an upload ready to be written to the uploads directory
type ProcessedImage struct {
	Data   []byte
	Ext    string
	Width  int
	Height int
	// Reencoded is false when Data is the original upload
	Reencoded bool
}

// ImageService validates uploads and normalizes them for display: HEIC is
// converted to JPEG, EXIF orientation is baked in and oversized images are
// scaled down.
type ImageService struct {
	maxDimension int
}

// NewImageService creates an ImageService. A maxDimension of 0 keeps the
// original size.
func NewImageService(maxDimension int) *ImageService {
	return &ImageService{maxDimension: maxDimension}
}

// Normalize decodes data and returns the bytes to store. Images that need no
// change are returned untouched.
func (s *ImageService) Normalize(data []byte, ext string) (*ProcessedImage, error) {
	ext = strings.ToLower(ext)

	if IsHEIC(ext) {
		img, err := decodeHEIC(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrUndecodableImage, err)
		}
		orientation := 1
		if raw, err := goheif.ExtractExif(bytes.NewReader(data)); err == nil {
			orientation = readOrientation(raw)
		}
		return s.encode(applyOrientation(img, orientation), ".jpg")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUndecodableImage, err)
	}

	orientation := readOrientation(data)
	if orientation <= 1 && !s.tooLarge(cfg.Width, cfg.Height) {
		return &ProcessedImage{Data: data, Ext: ext, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUndecodableImage, err)
	}

	// imaging has no WebP encoder
	outExt := ext
	if ext == ".webp" {
		outExt = ".jpg"
	}
	return s.encode(applyOrientation(img, orientation), outExt)
}

func (s *ImageService) tooLarge(width, height int) bool {
	return s.maxDimension > 0 && (width > s.maxDimension || height > s.maxDimension)
}

func (s *ImageService) encode(img image.Image, ext string) (*ProcessedImage, error) {
	bounds := img.Bounds()
	if s.tooLarge(bounds.Dx(), bounds.Dy()) {
		// Fit keeps the aspect ratio; Lanczos as for thumbnails
		img = imaging.Fit(img, s.maxDimension, s.maxDimension, imaging.Lanczos)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds = img.Bounds()
	return &ProcessedImage{
		Data:      buf.Bytes(),
		Ext:       ext,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Reencoded: true,
	}, nil
}

// readOrientation returns the EXIF orientation (1-8) or 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
		return val
	}
	return 1
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// Transpose
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		// Rotate 90 CW
		return imaging.Rotate270(img)
	case 7:
		// Transverse
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		// Rotate 90 CCW
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// IsHEIC checks if the extension is HEIC/HEIF, which browsers cannot display
func IsHEIC(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".heic" || ext == ".heif"
}

// decodeHEIC decodes a HEIC/HEIF image using goheif (pure Go)
func decodeHEIC(data []byte) (img image.Image, err error) {
	// the decoder is not hardened against malformed input
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("failed to decode HEIC image: %v", r)
		}
	}()

	img, err = goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
	}
	if img == nil {
		return nil, errors.New("empty HEIC image")
	}
	return img, nil
}

func init() {
	exif.RegisterParsers()
}
