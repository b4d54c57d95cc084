package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps documents under a directory on disk.
type LocalStore struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{root: root, logger: logger, now: time.Now}, nil
}

func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	ref := ObjectKey(filename, s.now())
	dst := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create document dir: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	if size >= 0 && n != size {
		_ = os.Remove(dst)
		return "", fmt.Errorf("short write: got %d of %d bytes", n, size)
	}

	s.logger.DebugContext(ctx, "document stored", "ref", ref, "bytes", n)
	return ref, nil
}

func (s *LocalStore) Open(ctx context.Context, ref string) (string, func(), error) {
	if err := checkRef(ref); err != nil {
		return "", nil, err
	}
	p := filepath.Join(s.root, filepath.FromSlash(ref))
	if _, err := os.Stat(p); err != nil {
		return "", nil, fmt.Errorf("document %s: %w", ref, err)
	}
	return p, func() {}, nil
}

func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}
