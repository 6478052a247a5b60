package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ModelStore resolves model artifacts by name relative to a base directory.
type ModelStore interface {
	Save(name string, data io.Reader) error
	Open(name string) (io.ReadCloser, error)
	Exists(name string) bool
	Path(name string) string
}

type fileStorage struct {
	basePath string
}

func NewFileStorage(basePath string) ModelStore {
	return &fileStorage{basePath: basePath}
}

func (s *fileStorage) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact name %q escapes the model directory", name)
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *fileStorage) Save(name string, data io.Reader) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	// write to a temp file first so readers never see a partial artifact
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-"+filepath.Base(fullPath))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fullPath)
}

func (s *fileStorage) Open(name string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (s *fileStorage) Exists(name string) bool {
	fullPath, err := s.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

func (s *fileStorage) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.basePath, filepath.FromSlash(name))
}
