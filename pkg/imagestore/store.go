// Package imagestore keeps uploaded prescription images on local disk and
// hands out opaque references to them.
package imagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidRef = errors.New("invalid image reference")
	ErrNotFound   = errors.New("image not found")
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes data under <patientID>_<YYYYMMDD_HHMMSS>_<sanitized name> and
// returns that name as the reference. An existing file is never overwritten.
func (s *Store) Save(patientID, originalName string, data []byte, at time.Time) (string, error) {
	base := fmt.Sprintf("%s_%s_%s", SanitizeName(patientID), at.Format("20060102_150405"), SanitizeName(originalName))

	ref := base
	for i := 1; ; i++ {
		f, err := os.OpenFile(filepath.Join(s.root, ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, os.ErrExist) {
			ext := filepath.Ext(base)
			ref = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), i, ext)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating image file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("writing image file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing image file: %w", err)
		}
		return ref, nil
	}
}

// Path resolves ref to a file path inside the store.
func (s *Store) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", ErrInvalidRef
	}
	path := filepath.Join(s.root, ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Remove deletes the image; a missing file is not an error.
func (s *Store) Remove(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return ErrInvalidRef
	}
	err := os.Remove(filepath.Join(s.root, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeName reduces name to a safe single path element.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
