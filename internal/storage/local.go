package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var ErrInvalidKey = errors.New("storage: invalid object key")

// Object is a stored file and where clients can fetch it.
type Object struct {
	Key  string
	Path string
	URL  string
	Size int64
}

// Store persists rendered exports.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (Object, error)
	Open(ctx context.Context, key string) (*os.File, error)
}

// LocalStore writes objects below a root directory and serves them from
// baseURL.
type LocalStore struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

func NewLocalStore(root, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absolute, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{
		root:    absolute,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Put writes data atomically through a temp file in the target directory.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return Object{}, fmt.Errorf("store %s: %w", key, err)
	}

	s.logger.Debug("object stored",
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return Object{
		Key:  key,
		Path: fullPath,
		URL:  s.URL(key),
		Size: int64(len(data)),
	}, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (*os.File, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// URL is the public address of key. Keys are slash separated.
func (s *LocalStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *LocalStore) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
