// Package minio mirrors raw archives and parsed-patent sidecars into a
// single object storage bucket. It is a best-effort mirror only: the local
// filesystem under DATA_ROOT remains the authoritative store, and a nil
// *Mirror (MINIO_ENDPOINT unset) disables the mirror entirely.
package minio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// minioAPI abstracts the handful of *minio.Client methods the mirror uses,
// so tests can substitute a fake without a running server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// clientAdapter narrows *minio.Client to minioAPI (the real SDK's PutObject
// takes io.Reader; the mirror only ever uploads in-memory buffers).
type clientAdapter struct{ *minio.Client }

func (c clientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.Client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

// Config holds the MINIO_* environment configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Mirror uploads weekly ZIP archives and per-patent JSON sidecars to one
// MinIO bucket, keyed by week and publication number.
type Mirror struct {
	client minioAPI
	bucket string
	logger logging.Logger
}

// NewMirror dials endpoint, verifies the target bucket exists (creating it
// if not), and returns a ready Mirror.
func NewMirror(ctx context.Context, cfg Config, logger logging.Logger) (*Mirror, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.CodeValidation, "minio: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.CodeValidation, "minio: bucket is required")
	}

	raw, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to construct minio client")
	}

	m := &Mirror{client: clientAdapter{raw}, bucket: cfg.Bucket, logger: logger}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("minio mirror connected", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.Bucket))
	return m, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "failed to check minio bucket")
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create minio bucket")
	}
	m.logger.Info("created minio bucket", logging.String("bucket", m.bucket))
	return nil
}

// UploadArchive mirrors the raw weekly ZIP under archives/{week}.zip.
func (m *Mirror) UploadArchive(ctx context.Context, week string, data []byte) error {
	return m.put(ctx, fmt.Sprintf("archives/%s.zip", week), data, "application/zip")
}

// UploadPatentJSON mirrors one parsed-patent sidecar under
// patents/{week}/{publicationNumber}.json.
func (m *Mirror) UploadPatentJSON(ctx context.Context, week, publicationNumber string, data []byte) error {
	key := fmt.Sprintf("patents/%s/%s.json", week, publicationNumber)
	return m.put(ctx, key, data, "application/json")
}

func (m *Mirror) put(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "minio upload failed").WithDetail(objectKey)
	}
	return nil
}

// HealthCheck reports whether the mirror's bucket is still reachable.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "minio health check failed")
	}
	if !exists {
		return errors.Newf(errors.CodeNotFound, "minio bucket %q does not exist", m.bucket)
	}
	return nil
}
