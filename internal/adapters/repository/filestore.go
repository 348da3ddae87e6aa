package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const defaultMaxArtifactSize = 512 << 20

// FileStore reads artifacts from a directory on local disk.
type FileStore struct {
	dir     string
	maxSize int64
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{dir: dir, maxSize: defaultMaxArtifactSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locate implements Store.
func (s *FileStore) Locate(name string) string {
	return filepath.Join(s.dir, name)
}

// Open implements Store. Names are file names relative to the store root;
// absolute paths and parent references are rejected.
func (s *FileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	const op = "repository.open"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	clean := filepath.Clean(name)
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidName, name)
	}

	path := s.Locate(clean)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotARegular, path)
	}
	if info.Size() > s.maxSize {
		return nil, fmt.Errorf("%s: %w: %s is %d bytes, limit %d", op, ErrTooLarge, path, info.Size(), s.maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}
