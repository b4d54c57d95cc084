package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps documents in a MinIO (or any S3 compatible) bucket.
// Open downloads the object to a temp file for the text loaders.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewMinioStore(cfg MinioConfig, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		s.logger.InfoContext(ctx, "bucket created", "bucket", s.bucket)
	}
	return nil
}

func (s *MinioStore) Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	ref := ObjectKey(filename, time.Now())
	contentType := mime.TypeByExtension(path.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, ref, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}
	s.logger.DebugContext(ctx, "document stored", "bucket", s.bucket, "ref", ref)
	return ref, nil
}

func (s *MinioStore) Open(ctx context.Context, ref string) (string, func(), error) {
	if err := checkRef(ref); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp("", "invoice-doc-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	// keep the extension, the loaders dispatch on it
	local := filepath.Join(dir, path.Base(ref))
	if err := s.client.FGetObject(ctx, s.bucket, ref, local, minio.GetObjectOptions{}); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to download document %s: %w", ref, err)
	}
	return local, cleanup, nil
}

func (s *MinioStore) Remove(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
