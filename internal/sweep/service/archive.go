package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dealersync_backend/platform/config"
)

// MinioArchiver stores sweep reports as JSON objects in a MinIO bucket, one
// object per sweep, keyed by source and finish timestamp. Operators review
// these before enabling the destructive gate.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver creates the report archiver and ensures the bucket
// exists.
func NewMinioArchiver(ctx context.Context, cfg config.ArchiveConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	bucket := cfg.GetMinioBucketSweepReports()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &MinioArchiver{client: client, bucket: bucket}, nil
}

// Compile-time check that MinioArchiver implements Archiver.
var _ Archiver = (*MinioArchiver)(nil)

// Store uploads one report.
func (a *MinioArchiver) Store(ctx context.Context, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sweep report: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", report.Source, report.FinishedAt.UTC().Format("2006-01-02T15-04-05Z"))
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload sweep report %s: %w", key, err)
	}
	return nil
}
