// internal/storage/minio.go
package storage

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"esplit/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOClient struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
}

func NewMinIOClient(ctx context.Context, cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Create bucket if it doesn't exist
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &MinIOClient{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

// progressReader is handed to minio as PutObjectOptions.Progress; the client
// reads from it once per chunk it has consumed from the source. Parts of a
// parallel multipart upload may report concurrently.
type progressReader struct {
	sent atomic.Int64
	fn   func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n := p.sent.Add(int64(len(b)))
	if p.fn != nil {
		p.fn(n)
	}
	return len(b), nil
}

// Upload streams r to objectName. Large payloads go through a multipart
// upload whose parts are retried by the client; cancelling ctx aborts the
// multipart upload, so no partial object becomes visible.
func (m *MinIOClient) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string, progress func(int64)) error {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	if progress != nil {
		opts.Progress = &progressReader{fn: progress}
	}

	if _, err := m.client.PutObject(ctx, m.bucket, objectName, r, size, opts); err != nil {
		return fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return nil
}

// ResolveRetrievalURL confirms the object exists and returns a presigned GET
// URL for it.
func (m *MinIOClient) ResolveRetrievalURL(ctx context.Context, objectName string) (string, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, objectName, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to stat object: %w", err)
	}
	return m.GetPresignedURL(ctx, objectName)
}

// GetPresignedURL generates a presigned URL for downloading
func (m *MinIOClient) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, m.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// Ping checks that the bucket is reachable.
func (m *MinIOClient) Ping(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		return fmt.Errorf("minio unreachable: %w", err)
	}
	return nil
}
