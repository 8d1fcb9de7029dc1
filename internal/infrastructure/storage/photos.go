package storage

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/fsutil"
)

// PhotoDir is the subdirectory of the data directory holding captured photos.
const PhotoDir = "Photos"

// ErrInvalidPhotoPath is returned for references that escape the data directory.
var ErrInvalidPhotoPath = errors.New("invalid photo path")

// PhotoStore keeps captured receipt photos as individual files named by the
// receipt identity. Receipts reference them by path relative to the data
// directory only.
type PhotoStore struct {
	root string
}

// NewPhotoStore creates a photo store rooted at the application data directory.
func NewPhotoStore(dataDir string) *PhotoStore {
	return &PhotoStore{root: dataDir}
}

// Save writes the photo for receipt id atomically and returns its relative path.
func (p *PhotoStore) Save(id string, data []byte) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: bad receipt id %q", ErrInvalidPhotoPath, id)
	}
	if len(data) == 0 {
		return "", errors.New("empty photo")
	}

	rel := filepath.ToSlash(filepath.Join(PhotoDir, id+photoExt(data)))
	if err := fsutil.WriteFileAtomic(filepath.Join(p.root, filepath.FromSlash(rel)), data, 0o600); err != nil {
		return "", fmt.Errorf("%w: save photo: %w", ErrStorage, err)
	}
	return rel, nil
}

// Load reads a photo by its relative path.
func (p *PhotoStore) Load(rel string) ([]byte, error) {
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: load photo: %w", ErrStorage, err)
	}
	return data, nil
}

// Remove deletes a photo. Missing files are not an error.
func (p *PhotoStore) Remove(rel string) error {
	abs, err := p.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove photo: %w", ErrStorage, err)
	}
	return nil
}

func (p *PhotoStore) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhotoPath, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhotoPath, rel)
	}
	return filepath.Join(p.root, clean), nil
}

func photoExt(data []byte) string {
	if http.DetectContentType(data) == "image/png" {
		return ".png"
	}
	return ".jpg"
}
