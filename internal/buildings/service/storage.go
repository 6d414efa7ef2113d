package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidName = errors.New("invalid file name")

// ============================================================
// File Storage
// ============================================================

// FileStorage keeps uploaded images and models under <root>/uploads.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (s *FileStorage) UploadsDir() string {
	return filepath.Join(s.root, "uploads")
}

// UploadPath resolves a stored file name. Names that would leave the
// uploads directory are rejected.
func (s *FileStorage) UploadPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.UploadsDir(), name), nil
}

func (s *FileStorage) EnsureUploadsDir() error {
	if err := os.MkdirAll(s.UploadsDir(), 0o755); err != nil {
		return fmt.Errorf("mkdir uploads dir: %w", err)
	}
	return nil
}

// SaveUpload writes data under a fresh name that keeps the original
// extension, and returns that name.
func (s *FileStorage) SaveUpload(original string, data []byte) (string, error) {
	if err := s.EnsureUploadsDir(); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(original))
	path, err := s.UploadPath(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return name, nil
}
