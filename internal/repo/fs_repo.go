package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oziev02/pixelflex/internal/domain"
)

type fsRepo struct {
	basePath string
}

// NewFilesystemRepository keeps blobs as files under basePath. The directory
// is owned by the session and removed entirely on Purge.
func NewFilesystemRepository(basePath string) BlobRepository {
	return &fsRepo{basePath: basePath}
}

func (r *fsRepo) path(h domain.Handle) (string, error) {
	if !validHandle(h) {
		return "", fmt.Errorf("%w: %q", domain.ErrHandleNotFound, h)
	}
	s := string(h)
	return filepath.Join(r.basePath, s[:2], s), nil
}

func (r *fsRepo) Put(ctx context.Context, data []byte) (domain.Handle, error) {
	h := domain.Handle(GenerateID())
	fullPath, err := r.path(h)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, bytes.NewReader(data)); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return h, nil
}

func (r *fsRepo) Get(ctx context.Context, h domain.Handle) ([]byte, error) {
	fullPath, err := r.path(h)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrHandleNotFound, h)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (r *fsRepo) Release(ctx context.Context, h domain.Handle) error {
	fullPath, err := r.path(h)
	if err != nil {
		return nil
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already released
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (r *fsRepo) Exists(ctx context.Context, h domain.Handle) (bool, error) {
	fullPath, err := r.path(h)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

func (r *fsRepo) Purge(ctx context.Context) error {
	if err := os.RemoveAll(r.basePath); err != nil {
		return fmt.Errorf("failed to purge storage: %w", err)
	}
	return nil
}
