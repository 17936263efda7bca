package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tbourn/go-genart-backend/internal/config"
)

// ObjectStore uploads to an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
	secure bool
	host   string
}

// NewObjectStore creates a MinIO client. The endpoint may be a bare host:port
// or a full URL, in which case its scheme decides TLS.
func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{client: client, cfg: cfg, secure: useSSL, host: endpoint}, nil
}

// EnsureBucket creates the configured bucket when it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// Upload implements AssetStore.
func (s *ObjectStore) Upload(ctx context.Context, obj Object) (string, error) {
	if strings.TrimSpace(obj.Path) == "" {
		return "", ErrInvalidObject
	}
	folder := obj.Folder
	if folder == "" {
		folder = s.cfg.Folder
	}
	key := objectKey(folder, obj.Ext, time.Now())

	_, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, obj.Path, minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.publicURL(key), nil
}

// publicURL prefers the configured CDN base, else path-style endpoint URLs.
func (s *ObjectStore) publicURL(key string) string {
	if base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + key
	}
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.host, s.cfg.Bucket, key)
}
