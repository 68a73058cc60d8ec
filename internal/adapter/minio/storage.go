// Package minio administers per-tenant buckets on S3-compatible storage.
package minio

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Config holds the connection settings for the storage endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Storage implements domain.ObjectStorage with minio-go.
type Storage struct {
	client *minio.Client
	region string
	logger *zap.Logger
}

var _ domain.ObjectStorage = (*Storage)(nil)

// New creates a storage client. No request is made until the first call.
func New(cfg Config, logger *zap.Logger) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{client: client, region: cfg.Region, logger: logger}, nil
}

// CreateBucket creates the bucket. A bucket we already own counts as created.
func (s *Storage) CreateBucket(ctx context.Context, name string) error {
	err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.region})
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
		return nil
	}
	return fmt.Errorf("creating bucket: %w", err)
}

// RemoveBucket empties the bucket and removes it. A missing bucket counts as
// removed.
func (s *Storage) RemoveBucket(ctx context.Context, name string) error {
	exists, err := s.client.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		return nil
	}

	objects, listErr := listObjects(ctx, s.client, name)

	var errs error
	for rerr := range s.client.RemoveObjects(ctx, name, objects, minio.RemoveObjectsOptions{}) {
		errs = multierr.Append(errs, fmt.Errorf("removing %s: %w", rerr.ObjectName, rerr.Err))
	}
	errs = multierr.Append(errs, *listErr)
	if errs != nil {
		return fmt.Errorf("emptying bucket: %w", errs)
	}

	if err := s.client.RemoveBucket(ctx, name); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchBucket" {
			return nil
		}
		return fmt.Errorf("removing bucket: %w", err)
	}

	s.logger.Info("bucket removed", zap.String("bucket", name))
	return nil
}

// listObjects streams every object version in bucket. Listing errors are
// held back from the stream and available through the returned pointer once
// the stream is drained.
func listObjects(ctx context.Context, client *minio.Client, bucket string) (<-chan minio.ObjectInfo, *error) {
	out := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(out)
		for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true, WithVersions: true}) {
			if obj.Err != nil {
				listErr = multierr.Append(listErr, obj.Err)
				continue
			}
			out <- obj
		}
	}()
	return out, &listErr
}
