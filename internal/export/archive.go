package export

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver uploads generated exports to S3-compatible object storage so
// reports survive beyond the HTTP response that produced them.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver connects to the object store and ensures the bucket exists.
func NewArchiver(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Archiver{client: client, bucket: bucket}, nil
}

// Store uploads an export result and returns the object name. Objects are
// keyed by date so repeated exports on the same day overwrite each other.
func (a *Archiver) Store(ctx context.Context, result *Result) (string, error) {
	objectName := time.Now().UTC().Format("2006/01/02") + "/" + result.Filename
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{ContentType: result.MimeType})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", objectName, err)
	}
	return objectName, nil
}

// StoreAsync uploads in the background and logs failures. Export downloads
// must not block on, or fail because of, the archive store.
func (a *Archiver) StoreAsync(result *Result) {
	if a == nil {
		return
	}
	copied := &Result{
		Data:     append([]byte(nil), result.Data...),
		Filename: result.Filename,
		MimeType: result.MimeType,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := a.Store(ctx, copied); err != nil {
			log.Printf("export: archive upload failed: %v", err)
		}
	}()
}
