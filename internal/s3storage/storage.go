// Package s3storage implements the transient content store on MinIO or AWS S3.
package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// Storage wraps MinIO interactions for published artifacts.
type Storage struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
	urlTTL     time.Duration
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.S3Region,
		publicBase: cfg.PublicBaseURL,
		urlTTL:     cfg.Retention,
	}, nil
}

// EnsureBucket makes sure the artifact bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads an artifact, replacing any object stored under the same key.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return classifyMinio("put object", err)
	}
	return nil
}

// URL returns the delivery URL for key: a public URL when a public base is
// configured, otherwise a presigned GET valid for the retention window.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	if s.publicBase != "" {
		return publicURL(s.publicBase, key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, url.Values{})
	if err != nil {
		return "", classifyMinio("presign object", err)
	}
	return u.String(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinio("remove object", err)
	}
	return nil
}

// Exists reports whether key is still present.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, classifyMinio("stat object", err)
}

func classifyMinio(op string, err error) error {
	return fault.New(kindForCode(minio.ToErrorResponse(err).Code), op, err)
}
