package minio

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
)

type fakeMinioAPI struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	putErr          error
	madeBucket      string
	puts            map[string][]byte
}

func newFakeMinioAPI() *fakeMinioAPI {
	return &fakeMinioAPI{bucketExists: true, puts: make(map[string][]byte)}
}

func (f *fakeMinioAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	if f.bucketExistsErr != nil {
		return false, f.bucketExistsErr
	}
	return f.bucketExists, nil
}

func (f *fakeMinioAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	if f.makeBucketErr != nil {
		return f.makeBucketErr
	}
	f.madeBucket = bucketName
	f.bucketExists = true
	return nil
}

func (f *fakeMinioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	buf := make([]byte, objectSize)
	_, _ = reader.Read(buf)
	f.puts[objectName] = buf
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func TestNewMirror_CreatesBucketWhenMissing(t *testing.T) {
	api := newFakeMinioAPI()
	api.bucketExists = false
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	require.NoError(t, m.ensureBucket(context.Background()))
	assert.Equal(t, "patents", api.madeBucket)
}

func TestNewMirror_SkipsCreateWhenBucketExists(t *testing.T) {
	api := newFakeMinioAPI()
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	require.NoError(t, m.ensureBucket(context.Background()))
	assert.Empty(t, api.madeBucket)
}

func TestMirror_UploadArchive_WritesExpectedKey(t *testing.T) {
	api := newFakeMinioAPI()
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	require.NoError(t, m.UploadArchive(context.Background(), "2026-W10", []byte("zip-bytes")))
	assert.Equal(t, []byte("zip-bytes"), api.puts["archives/2026-W10.zip"])
}

func TestMirror_UploadPatentJSON_WritesExpectedKey(t *testing.T) {
	api := newFakeMinioAPI()
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	require.NoError(t, m.UploadPatentJSON(context.Background(), "2026-W10", "US-1234567-B2", []byte(`{"k":"v"}`)))
	assert.Equal(t, []byte(`{"k":"v"}`), api.puts["patents/2026-W10/US-1234567-B2.json"])
}

func TestMirror_Upload_WrapsPutError(t *testing.T) {
	api := newFakeMinioAPI()
	api.putErr = errors.New("connection reset")
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	err := m.UploadArchive(context.Background(), "2026-W10", []byte("zip-bytes"))
	assert.Error(t, err)
}

func TestMirror_HealthCheck_ReportsMissingBucket(t *testing.T) {
	api := newFakeMinioAPI()
	api.bucketExists = false
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	assert.Error(t, m.HealthCheck(context.Background()))
}

func TestMirror_HealthCheck_OKWhenBucketPresent(t *testing.T) {
	api := newFakeMinioAPI()
	m := &Mirror{client: api, bucket: "patents", logger: logging.NewNopLogger()}

	assert.NoError(t, m.HealthCheck(context.Background()))
}
