// Package storage mirrors archived photos to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrNotConfigured = errors.New("archive mirror is not configured")

// Mirror pushes archived photos to an S3-compatible bucket. The pipeline
// runs fine without one; a nil Mirror simply disables mirroring.
type Mirror struct {
	client        *s3.Client
	bucket        string
	endpoint      string
	publicBaseURL string
}

type mirrorConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

// NewMirrorFromEnv builds a Mirror from MIRROR_* environment variables.
// Missing required variables yield ErrNotConfigured, which callers treat
// as "mirroring disabled" rather than a failure.
func NewMirrorFromEnv() (*Mirror, error) {
	cfg := mirrorConfig{
		Endpoint:      strings.TrimSpace(os.Getenv("MIRROR_ENDPOINT")),
		AccessKey:     strings.TrimSpace(os.Getenv("MIRROR_ACCESS_KEY_ID")),
		SecretKey:     strings.TrimSpace(os.Getenv("MIRROR_SECRET_ACCESS_KEY")),
		Bucket:        strings.TrimSpace(os.Getenv("MIRROR_BUCKET")),
		Region:        strings.TrimSpace(os.Getenv("MIRROR_REGION")),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MIRROR_PUBLIC_BASE_URL")), "/"),
	}

	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg := aws.Config{
		Region:                      cfg.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		EndpointResolverWithOptions: resolver,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &Mirror{
		client:        client,
		bucket:        cfg.Bucket,
		endpoint:      strings.TrimRight(cfg.Endpoint, "/"),
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

// Upload streams body to the bucket under key and returns the object URL.
func (m *Mirror) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if m == nil || m.client == nil {
		return "", ErrNotConfigured
	}
	if size <= 0 {
		return "", fmt.Errorf("empty file")
	}
	input := &s3.PutObjectInput{
		Bucket:        &m.bucket,
		Key:           &key,
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("mirror upload failed: %w", err)
	}
	return m.objectURL(key), nil
}

// UploadFile mirrors an archived photo from disk.
func (m *Mirror) UploadFile(ctx context.Context, key, path string) (string, error) {
	if m == nil || m.client == nil {
		return "", ErrNotConfigured
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return m.Upload(ctx, key, f, info.Size(), "image/jpeg")
}

func (m *Mirror) objectURL(key string) string {
	trimmedKey := strings.TrimLeft(key, "/")
	if m.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", m.publicBaseURL, m.bucket, trimmedKey)
	}
	return fmt.Sprintf("%s/%s/%s", m.endpoint, m.bucket, trimmedKey)
}
