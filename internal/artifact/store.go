// Package artifact stores original receipt images.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that would escape the store
var ErrInvalidKey = errors.New("invalid artifact key")

// Store defines the interface for artifact storage operations
type Store interface {
	// Put writes data under key
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the data stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the data stored under key
	Delete(ctx context.Context, key string) error
}

// Key builds the storage key for an original receipt image: {userID}/{unixMillis}.{ext}
func Key(userID string, at time.Time, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%d.%s", userID, at.UnixMilli(), strings.TrimPrefix(ext, "."))
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || filepath.IsAbs(key) {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// LocalStore implements the Store interface using the local filesystem
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (l *LocalStore) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

// Put writes a file, creating per-user directories as needed
func (l *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// Get reads a file
func (l *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file
func (l *LocalStore) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
