// Package archive copies the snapshot files to S3/MinIO for off-box backup.
// The snapshot store stays the source of truth; the archive is write-only.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/andrescamacho/guiatrack/internal/config"
)

// Uploader wraps the MinIO client for snapshot backups.
type Uploader struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Uploader, error) {
	if cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("no object storage endpoint configured")
	}
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.BackupBucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the backup bucket exists before use.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", u.bucket, err)
		}
	}
	return nil
}

// BackupDir uploads every snapshot file in the data directory under a
// timestamped prefix and returns that prefix.
func (u *Uploader) BackupDir(ctx context.Context, dir string) (string, error) {
	prefix := time.Now().UTC().Format("20060102T150405Z")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read data dir: %w", err)
	}
	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		local := filepath.Join(dir, entry.Name())
		key := fmt.Sprintf("%s/%s", prefix, entry.Name())
		if _, err := u.client.FPutObject(ctx, u.bucket, key, local, minio.PutObjectOptions{
			ContentType: "text/csv",
		}); err != nil {
			return "", fmt.Errorf("upload %s: %w", entry.Name(), err)
		}
		uploaded++
	}
	if uploaded == 0 {
		return "", fmt.Errorf("no snapshot files found in %s", dir)
	}
	return prefix, nil
}
