package prescription

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	errMissingFile    = errors.New("no prescription file uploaded")
	errEmptyFile      = errors.New("uploaded file is empty")
	errFileTooLarge   = errors.New("uploaded file exceeds size limit")
	errUnsupportedExt = errors.New("unsupported file type")
)

// contentTypes maps the accepted upload extensions to the type forwarded to
// the recognizer.
var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
}

type UploadValidator struct {
	maxBytes int64
}

func NewUploadValidator(maxBytes int64) *UploadValidator {
	return &UploadValidator{maxBytes: maxBytes}
}

// Validate checks the file name and size and returns the content type for it.
func (v *UploadValidator) Validate(filename string, size int64) (string, error) {
	if v == nil {
		return "", ValidationError{reason: errors.New("validator not initialised")}
	}
	if strings.TrimSpace(filename) == "" {
		return "", ValidationError{reason: errMissingFile}
	}
	if size == 0 {
		return "", ValidationError{reason: errEmptyFile}
	}
	if v.maxBytes > 0 && size > v.maxBytes {
		return "", ValidationError{reason: fmt.Errorf("%d bytes: %w", size, errFileTooLarge)}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	ct, ok := contentTypes[ext]
	if !ok {
		return "", ValidationError{reason: fmt.Errorf("'%s': %w", ext, errUnsupportedExt)}
	}
	return ct, nil
}
