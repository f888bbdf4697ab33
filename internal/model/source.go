package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3Scheme = "s3://"

// Source opens artifact files by reference.
type Source interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Resolve returns ref unchanged when absolute; otherwise it is joined with the
// directory that holds base. Works for both local paths and s3:// references.
func Resolve(base, ref string) string {
	if ref == "" {
		return ref
	}
	if strings.HasPrefix(ref, s3Scheme) || filepath.IsAbs(ref) {
		return ref
	}
	if strings.HasPrefix(base, s3Scheme) {
		return s3Scheme + path.Join(path.Dir(strings.TrimPrefix(base, s3Scheme)), ref)
	}
	return filepath.Join(filepath.Dir(base), ref)
}

// FileSource reads artifacts from the local filesystem.
type FileSource struct{}

func (FileSource) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if strings.HasPrefix(ref, s3Scheme) {
		return nil, fmt.Errorf("open %s: object storage is not configured", ref)
	}
	return os.Open(ref)
}

// S3Config holds the object storage connection settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectSource reads s3://bucket/key references with minio and falls back
// to the local filesystem for everything else.
type ObjectSource struct {
	client *minio.Client
	local  FileSource
}

// NewObjectSource creates a minio client for the given endpoint.
func NewObjectSource(cfg S3Config) (*ObjectSource, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &ObjectSource{client: client}, nil
}

func (s *ObjectSource) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !strings.HasPrefix(ref, s3Scheme) {
		return s.local.Open(ctx, ref)
	}
	bucket, key, err := splitObjectRef(ref)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return obj, nil
}

func splitObjectRef(ref string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(ref, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object reference %q: want s3://bucket/key", ref)
	}
	return bucket, key, nil
}
