package validation

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func formFile(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	w.Close()

	req := httptest.NewRequest("PUT", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	file, header, err := req.FormFile("image")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	t.Cleanup(func() { file.Close() })
	return file, header
}

func TestValidateImage(t *testing.T) {
	file, header := formFile(t, "meal.PNG", pngHeader)
	got, err := ValidateImage(file, header, ListingImage)
	if err != nil {
		t.Fatalf("ValidateImage: %v", err)
	}
	if got != "image/png" {
		t.Errorf("content type = %q, want image/png", got)
	}
	if ext := ListingImage.ImageExtension(got); ext != ".png" {
		t.Errorf("extension = %q, want .png", ext)
	}

	// rewound for the upload
	first := make([]byte, 4)
	file.Read(first)
	if !bytes.Equal(first, pngHeader[:4]) {
		t.Errorf("file not rewound, read %q", first)
	}
}

func TestValidateImage_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		wantErr  string
	}{
		{"text disguised as png", "meal.png", []byte("just some text"), "invalid image type"},
		{"wrong extension", "meal.gif", pngHeader, "invalid image extension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, header := formFile(t, tt.filename, tt.content)
			_, err := ValidateImage(file, header, ListingImage)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	small := ListingImage
	small.MaxSize = 8
	file, header := formFile(t, "meal.png", pngHeader)
	if _, err := ValidateImage(file, header, small); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("oversize error = %v", err)
	}
}
