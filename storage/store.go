// Package storage writes job outputs under the shared storage root and
// returns the relative paths the calling application reads back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Area is a top-level output directory.
type Area string

const (
	Images  Area = "images"
	Videos  Area = "videos"
	Stories Area = "stories"
)

// ErrInvalidName is returned for file names that would escape their area.
var ErrInvalidName = errors.New("storage: invalid file name")

// Store persists outputs below baseDir/root. Returned paths are
// slash-separated and start with root, e.g. "storage/images/image_c1_42.png".
type Store struct {
	baseDir string
	root    string
}

// New creates a Store. root is relative to baseDir.
func New(baseDir, root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root is required")
	}
	if baseDir == "" {
		baseDir = "."
	}
	return &Store{baseDir: baseDir, root: filepath.ToSlash(filepath.Clean(root))}, nil
}

// Path returns the filesystem path and the reported relative path for name
// in area, creating the area directory.
func (s *Store) Path(area Area, name string) (full, rel string, err error) {
	if err := validateName(name); err != nil {
		return "", "", err
	}
	rel = path.Join(s.root, string(area), name)
	full = filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	return full, rel, nil
}

// Write stores data as name in area and returns the relative path. The file
// appears atomically: readers never observe a partial write.
func (s *Store) Write(ctx context.Context, area Area, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, rel, err := s.Path(area, name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: rename file: %w", err)
	}
	return rel, nil
}

// WriteText stores UTF-8 text.
func (s *Store) WriteText(ctx context.Context, area Area, name, text string) (string, error) {
	return s.Write(ctx, area, name, []byte(text))
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
