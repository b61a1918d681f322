package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxSourceFileBytes int64 = 20 * 1024 * 1024

// SourceArchive keeps the original bytes of uploaded knowledge files in
// MinIO/S3. Ingestion only stores extracted text in the database; the archive
// preserves the source document for re-processing. It is optional: a nil
// archive disables archiving entirely.
type SourceArchive struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewSourceArchiveFromEnv initialises the archive from MINIO_* environment
// variables. Returns (nil, nil) when the archive is not configured.
func NewSourceArchiveFromEnv() (*SourceArchive, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	publicURL := strings.TrimSpace(os.Getenv("MINIO_PUBLIC_URL"))
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	return &SourceArchive{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Store uploads the raw file bytes under sources/<userID>/<uuid><ext> and
// returns the public object URL.
func (a *SourceArchive) Store(ctx context.Context, userID uint64, filename string, contentType string, data []byte) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("storage: source archive is not configured")
	}
	if len(data) == 0 {
		return "", errors.New("storage: source file is empty")
	}
	if int64(len(data)) > maxSourceFileBytes {
		return "", fmt.Errorf("storage: source file exceeds %d bytes", maxSourceFileBytes)
	}

	ext := strings.ToLower(path.Ext(filename))
	objectName := fmt.Sprintf("sources/%d/%s%s", userID, uuid.NewString(), ext)

	opts := minio.PutObjectOptions{ContentType: contentType}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	if _, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("storage: upload source file: %w", err)
	}

	escaped := make([]string, 0, 4)
	for _, segment := range strings.Split(objectName, "/") {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return a.publicURL + "/" + path.Join(a.bucket, strings.Join(escaped, "/")), nil
}
