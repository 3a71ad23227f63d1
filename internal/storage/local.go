package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type localStore struct {
	fs afero.Fs
}

// NewLocalStore keeps files under baseDir on fs. A nil fs uses the
// operating system. Keys may not escape baseDir.
func NewLocalStore(fs afero.Fs, baseDir string) (Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if baseDir == "" {
		return nil, fmt.Errorf("LOCAL_STORAGE_DIR is required for the local driver")
	}
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", baseDir, err)
	}
	return &localStore{fs: afero.NewBasePathFs(fs, baseDir)}, nil
}

func cleanKey(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return clean, nil
}

func (l *localStore) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return "", ErrPresignUnsupported
}

func (l *localStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return "", ErrPresignUnsupported
}

func (l *localStore) UploadFile(ctx context.Context, key string, contentType string, data []byte) error {
	if err := validateContentType(contentType); err != nil {
		return err
	}
	name, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := l.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := afero.WriteFile(l.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (l *localStore) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}

func (l *localStore) DeleteFile(ctx context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
