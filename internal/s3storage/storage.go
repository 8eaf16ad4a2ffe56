// Package s3storage archives generated artifacts and ledger snapshots to an
// S3 compatible bucket (MinIO in development).
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
)

const (
	pdfContentType  = "application/pdf"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Storage wraps MinIO/S3 interactions for the archive bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the S3 section of the config.
func New(cfg config.S3Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket makes sure the archive bucket exists before use.
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

// ArtifactKey is the object key for a generated document.
func ArtifactKey(ref model.ArtifactRef) string {
	return path.Join("artifacts", ref.SubmissionID, ref.FileName())
}

// LedgerKey is the object key for the ledger snapshot sent with a batch.
func LedgerKey(batchID string) string {
	return path.Join("ledger", batchID+".xlsx")
}

// ArchiveArtifact uploads the file behind ref.
func (s *Storage) ArchiveArtifact(ctx context.Context, ref model.ArtifactRef) (string, error) {
	key := ArtifactKey(ref)
	_, err := s.client.FPutObject(ctx, s.bucket, key, ref.Path, minio.PutObjectOptions{ContentType: pdfContentType})
	if err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", key, err)
	}
	return key, nil
}

// ArchiveLedger uploads the ledger export captured for a batch.
func (s *Storage) ArchiveLedger(ctx context.Context, batchID string, export model.LedgerExport) (string, error) {
	key := LedgerKey(batchID)
	opts := minio.PutObjectOptions{ContentType: xlsxContentType}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(export.Data), int64(len(export.Data)), opts)
	if err != nil {
		return "", fmt.Errorf("upload ledger %s: %w", key, err)
	}
	return key, nil
}

// PresignURL returns a signed GET URL for an archived object.
func (s *Storage) PresignURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
