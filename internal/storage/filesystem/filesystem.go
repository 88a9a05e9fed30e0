// Package filesystem stores objects as plain files under a root directory.
// It backs the operator CLI and local development setups.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kk-code-lab/tierstore/internal/storage"
)

// Backend maps object keys to file paths under a root directory.
type Backend struct {
	root string
}

// New creates the root directory if needed and returns a Backend.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("filesystem: root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create root: %w", err)
	}
	return &Backend{root: root}, nil
}

func (b *Backend) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("filesystem: invalid key %q", key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Upload writes the object to a temp file and renames it into place.
func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filesystem: upload %q: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("filesystem: upload %q: %w", key, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: upload %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: upload %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("filesystem: upload %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("filesystem: fetch %q: %w", key, storage.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("filesystem: fetch %q: %w", key, err)
	}
	return file, nil
}

// FetchRange serves bytes [from, to] via a section reader over the open file.
func (b *Backend) FetchRange(ctx context.Context, key string, from, to int64) (io.ReadCloser, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("filesystem: fetch %q: invalid range [%d, %d]", key, from, to)
	}
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("filesystem: fetch %q: %w", key, storage.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("filesystem: fetch %q: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("filesystem: fetch %q: %w", key, err)
	}
	if from >= info.Size() {
		_ = file.Close()
		return nil, fmt.Errorf("filesystem: fetch %q: range start %d beyond object size %d", key, from, info.Size())
	}
	if to >= info.Size() {
		to = info.Size() - 1
	}
	return &sectionCloser{
		SectionReader: io.NewSectionReader(file, from, to-from+1),
		file:          file,
	}, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filesystem: delete %q: %w", key, err)
	}
	return nil
}

type sectionCloser struct {
	*io.SectionReader
	file *os.File
}

func (s *sectionCloser) Close() error {
	return s.file.Close()
}

var _ io.ReadCloser = (*sectionCloser)(nil)
