package blob

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/valuemap-grid/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDirStore_Get(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "v1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v1", "grid_5km_full.json.gz"), []byte("payload"), 0o600))

	store := NewDirStore(dir)
	rc, err := store.Get(context.Background(), "v1/grid_5km_full.json.gz")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDirStore_NotFound(t *testing.T) {
	store := NewDirStore(t.TempDir())

	_, err := store.Get(context.Background(), "grid_1km_full.json.gz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDirStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDirStore(t.TempDir()).Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

const noSuchKeyXML = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>missing</Key></Error>`

func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/snapshots/grid_25km_full.json.gz":
			w.Header().Set("Content-Type", "application/gzip")
			_, _ = w.Write([]byte("gzip-bytes"))
		case "/snapshots/forbidden.json.gz":
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(noSuchKeyXML))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestS3Store(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "snapshots",
		Endpoint:        endpoint,
		Region:          "auto",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	}, discardLogger())
	require.NoError(t, err)
	return store
}

func TestS3Store_Get(t *testing.T) {
	store := newTestS3Store(t, fakeS3(t).URL)

	rc, err := store.Get(context.Background(), "grid_25km_full.json.gz")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "gzip-bytes", string(data))
}

func TestS3Store_NoSuchKey(t *testing.T) {
	store := newTestS3Store(t, fakeS3(t).URL)

	_, err := store.Get(context.Background(), "missing.json.gz")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3Store_OtherErrorsAreNotNotFound(t *testing.T) {
	store := newTestS3Store(t, fakeS3(t).URL)

	_, err := store.Get(context.Background(), "forbidden.json.gz")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "s3://snapshots/forbidden.json.gz")
}
