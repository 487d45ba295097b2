// Package media stores product and profile images as files next to the
// store. The database only keeps the returned path.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind prefixes stored file names.
type Kind string

const (
	KindProduct Kind = "product"
	KindProfile Kind = "profile"
)

var allowedExt = map[string]bool{"png": true, "jpg": true, "jpeg": true, "webp": true}

// ErrUnsupportedExtension is returned for image types outside the whitelist.
var ErrUnsupportedExtension = errors.New("unsupported image extension")

// Store writes image blobs into Dir.
type Store struct {
	Dir string

	// NewID names files; uuid v7 when nil.
	NewID func() string
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NormalizeExt lowercases ext, drops a leading dot and checks the whitelist.
func NormalizeExt(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q (want png, jpg, jpeg or webp)", ErrUnsupportedExtension, ext)
	}
	return ext, nil
}

// Save writes data as "<Dir>/<kind>_<id>.<ext>" and returns the path.
func (s *Store) Save(kind Kind, ext string, data []byte) (string, error) {
	ext, err := NormalizeExt(ext)
	if err != nil {
		return "", fmt.Errorf("save %s image: %w", kind, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("save %s image: empty image", kind)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("save %s image: %w", kind, err)
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.%s", kind, s.newID(), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s image: %w", kind, err)
	}
	return path, nil
}

// Import copies an image file from src into the store.
func (s *Store) Import(kind Kind, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", src, err)
	}
	return s.Save(kind, filepath.Ext(src), data)
}

// Remove deletes a stored image. Paths outside Dir are refused and a missing
// file is not an error.
func (s *Store) Remove(path string) error {
	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return fmt.Errorf("remove image: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("remove image: %w", err)
	}
	if filepath.Dir(abs) != dir {
		return fmt.Errorf("remove image: %s is outside %s", path, s.Dir)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}
