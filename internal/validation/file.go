package validation

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// ImageConstraints defines what a listing photo may be
type ImageConstraints struct {
	AllowedMimeTypes  map[string]string // detected type -> canonical extension
	AllowedExtensions map[string]bool
	MaxSize           int64
}

var ListingImage = ImageConstraints{
	AllowedMimeTypes: map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	},
	AllowedExtensions: map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	},
	MaxSize: 5 << 20, // 5MB
}

// ValidateImage checks size, extension and the magic number of an uploaded
// photo. It returns the detected content type and rewinds the file.
func ValidateImage(file multipart.File, header *multipart.FileHeader, c ImageConstraints) (string, error) {
	if header.Size > c.MaxSize {
		return "", fmt.Errorf("image too large: maximum size is %d MB", c.MaxSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !c.AllowedExtensions[ext] {
		return "", fmt.Errorf("invalid image extension: %q", ext)
	}

	// http.DetectContentType looks at no more than 512 bytes
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind image: %w", err)
	}

	detected := http.DetectContentType(buffer[:n])
	if _, ok := c.AllowedMimeTypes[detected]; !ok {
		return "", fmt.Errorf("invalid image type (detected: %s)", detected)
	}

	return detected, nil
}

// ImageExtension returns the extension stored objects get for a detected type.
func (c ImageConstraints) ImageExtension(contentType string) string {
	return c.AllowedMimeTypes[contentType]
}
