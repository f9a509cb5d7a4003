package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	commons3 "github.com/xxxsen/common/s3"

	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type s3Store struct {
	client *commons3.S3Client
	prefix string
}

func newS3Store(cfg config.S3Config) (Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 endpoint/bucket/secret_id/secret_key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := commons3.New(
		commons3.WithEndpoint(cfg.Endpoint),
		commons3.WithSecret(cfg.SecretID, cfg.SecretKey),
		commons3.WithBucket(cfg.Bucket),
		commons3.WithRegion(region),
		commons3.WithSSL(cfg.UseSSL),
	)
	if err != nil {
		return nil, err
	}
	return &s3Store{client: client, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *s3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *s3Store) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return errs.Transient(err)
	}
	if _, err := s.client.Upload(ctx, s.objectKey(key), r, size); err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *s3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	rc, err := s.client.Download(ctx, s.objectKey(key))
	if err != nil {
		return nil, errs.Transient(err)
	}
	return rc, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Remove(ctx, s.objectKey(key)); err != nil {
		return errs.Transient(err)
	}
	return nil
}
