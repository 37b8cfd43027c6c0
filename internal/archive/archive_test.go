package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allyourbase/oraclone/internal/testutil"
)

type fakeStore struct {
	exists  bool
	err     error
	objects map[string]string
	types   map[string]string
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.objects == nil {
		f.objects, f.types = map[string]string{}, map[string]string{}
	}
	f.objects[bucket+"/"+object] = string(data)
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestKey(t *testing.T) {
	tests := []struct {
		name, prefix, run, file, want string
	}{
		{"prefixed", "oraclone", "run-1", "migrate.log", "oraclone/run-1/migrate.log"},
		{"nested prefix", "logs/oraclone", "run-1", "errors.log", "logs/oraclone/run-1/errors.log"},
		{"no prefix", "", "run-1", "migrate.log", "run-1/migrate.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &Uploader{prefix: tt.prefix}
			testutil.Equal(t, tt.want, u.key(tt.run, tt.file))
		})
	}
}

func TestNewChecksBucket(t *testing.T) {
	ctx := context.Background()
	_, err := NewWithStore(ctx, &fakeStore{}, "logs", "", testutil.DiscardLogger())
	testutil.ErrorContains(t, err, "bucket logs does not exist")

	_, err = NewWithStore(ctx, &fakeStore{err: errors.New("access denied")}, "logs", "", testutil.DiscardLogger())
	testutil.ErrorContains(t, err, "checking bucket logs: access denied")
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	migrateLog := filepath.Join(dir, "migrate.log")
	errorsLog := filepath.Join(dir, "errors.log")
	require.NoError(t, os.WriteFile(migrateLog, []byte("migration success\n"), 0o644))
	require.NoError(t, os.WriteFile(errorsLog, []byte("TOTAL: 0 hours, 0 minutes, 1 seconds\n"), 0o644))

	store := &fakeStore{exists: true}
	u, err := NewWithStore(context.Background(), store, "logs", "oraclone", testutil.DiscardLogger())
	require.NoError(t, err)

	keys, err := u.Upload(context.Background(), "run-1", migrateLog, filepath.Join(dir, "missing.log"), errorsLog)
	require.NoError(t, err)
	assert.Equal(t, []string{"oraclone/run-1/migrate.log", "oraclone/run-1/errors.log"}, keys)
	assert.Equal(t, "migration success\n", store.objects["logs/oraclone/run-1/migrate.log"])
	assert.Equal(t, "text/plain; charset=utf-8", store.types["oraclone/run-1/errors.log"])
}

func TestUploadFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "migrate.log")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	store := &fakeStore{exists: true}
	u, err := NewWithStore(context.Background(), store, "logs", "", testutil.DiscardLogger())
	require.NoError(t, err)
	store.err = errors.New("quota exceeded")

	keys, err := u.Upload(context.Background(), "run-1", file)
	testutil.ErrorContains(t, err, "uploading run-1/migrate.log: quota exceeded")
	assert.Empty(t, keys)
}
