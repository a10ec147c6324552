package storage

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestSplitEndpoint(t *testing.T) {
	host, secure := splitEndpoint("https://s3.lab.local:9000")
	assert.Equal(t, "s3.lab.local:9000", host)
	assert.True(t, secure)

	host, secure = splitEndpoint("http://localhost:9000")
	assert.Equal(t, "localhost:9000", host)
	assert.False(t, secure)

	host, secure = splitEndpoint("localhost:9000")
	assert.Equal(t, "localhost:9000", host)
	assert.False(t, secure)
}

func TestValidateContentType(t *testing.T) {
	assert.NoError(t, validateContentType("text/csv"))
	assert.NoError(t, validateContentType("application/octet-stream"))
	assert.Error(t, validateContentType("audio/wav"))
}

func TestNewS3Service_RequiresBucket(t *testing.T) {
	_, err := NewS3Service(S3Config{})
	assert.Error(t, err)
}

func TestNewS3Service_URLExpiry(t *testing.T) {
	svc, err := NewS3Service(S3Config{Bucket: "captures", Endpoint: "localhost:9000"})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, svc.URLExpiry())

	svc, err = NewS3Service(S3Config{Bucket: "captures", Endpoint: "localhost:9000", URLExpiry: 15 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, svc.URLExpiry())
}

func TestEnsureBucket_NoEndpoint(t *testing.T) {
	assert.NoError(t, EnsureBucket(context.Background(), S3Config{Bucket: "captures"}))
}

func TestS3Service_MinIO_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := minio.Run(ctx,
		"minio/minio:RELEASE.2024-10-29T16-01-48Z",
		minio.WithUsername("minioadmin"),
		minio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, container.Terminate(ctx))
	}()

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := S3Config{
		Bucket:    "wavescope-test-" + uuid.New().String()[:8],
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}
	require.NoError(t, EnsureBucket(ctx, cfg))
	require.NoError(t, EnsureBucket(ctx, cfg), "second call finds the bucket")

	svc, err := NewS3Service(cfg)
	require.NoError(t, err)

	key := "runs/test/time0.csv"
	body := []byte("2024-10-15T09:30:12.345Z")
	require.NoError(t, svc.Upload(ctx, key, body, "text/csv"))
	assert.Error(t, svc.Upload(ctx, key, body, "image/png"))

	url, err := svc.GenerateDownloadURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, url, cfg.Bucket)
	assert.Contains(t, url, "time0.csv")

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}
