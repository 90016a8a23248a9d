// Package s3 implements [blob.Store] over any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/areufunny/areufunny/internal/blob"
)

// Compile-time interface check.
var _ blob.Store = (*Store)(nil)

// Config holds the connection settings for an S3 bucket.
type Config struct {
	// Bucket is the target bucket name. Required.
	Bucket string

	// Region is the bucket's region. Required unless Endpoint points at an
	// S3-compatible store that ignores regions.
	Region string

	// AccessKeyID and SecretAccessKey select static credentials. Leave both
	// empty to use the SDK's default credential chain (environment,
	// profile, instance role).
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the S3 endpoint, for MinIO and friends. Path-style
	// addressing is used when set.
	Endpoint string

	// PublicBaseURL is the prefix public object URLs are built from, for
	// buckets served through a CDN. Defaults to the bucket's virtual-host
	// URL.
	PublicBaseURL string
}

// Store is the S3-backed [blob.Store]. Uploads go through the transfer
// manager so large payloads are split into concurrent parts.
type Store struct {
	cfg      Config
	client   *s3.Client
	uploader *manager.Uploader
}

// New builds the S3 client from cfg and the SDK's default configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// Put implements [blob.Store].
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 blob store: put %q: %w", key, err)
	}
	return s.publicURL(key), nil
}

// Ping checks that the bucket exists and is reachable. Used by the
// readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 blob store: head bucket %q: %w", s.cfg.Bucket, err)
	}
	return nil
}

// Delete implements [blob.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 blob store: delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
