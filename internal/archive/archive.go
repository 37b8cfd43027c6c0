// Package archive uploads the log files of a run to S3 compatible storage
// under <prefix>/<run id>/.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the storage settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// ObjectStore is the subset of *minio.Client used for uploads.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies run logs to a bucket.
type Uploader struct {
	store  ObjectStore
	bucket string
	prefix string
	logger *slog.Logger
}

// New connects to the endpoint and checks that the bucket exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return NewWithStore(ctx, client, cfg.Bucket, cfg.Prefix, logger)
}

// NewWithStore wraps an existing store.
func NewWithStore(ctx context.Context, store ObjectStore, bucket, prefix string, logger *slog.Logger) (*Uploader, error) {
	ok, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}
	return &Uploader{store: store, bucket: bucket, prefix: prefix, logger: logger}, nil
}

func (u *Uploader) key(runID, name string) string {
	return path.Join(u.prefix, runID, name)
}

// Upload stores each file under the run's prefix and returns the object
// keys. Missing files are skipped.
func (u *Uploader) Upload(ctx context.Context, runID string, files ...string) ([]string, error) {
	var keys []string
	for _, file := range files {
		key, err := u.put(ctx, runID, file)
		if err != nil {
			return keys, err
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, runID, file string) (string, error) {
	f, err := os.Open(file)
	if os.IsNotExist(err) {
		u.logger.Debug("archive: file not found", "file", file)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", file, err)
	}

	key := u.key(runID, filepath.Base(file))
	_, err = u.store.PutObject(ctx, u.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	u.logger.Info("log archived", "bucket", u.bucket, "key", key, "bytes", info.Size())
	return key, nil
}
