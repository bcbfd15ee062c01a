package gcsuploader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testBucket = "optim-test"

func newTestStore(t *testing.T) (*Store, *fakestorage.Server) {
	t.Helper()

	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{NoListener: true})
	require.NoError(t, err)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: testBucket})

	client, err := storage.NewClient(context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.HTTPClient()))
	require.NoError(t, err)

	s := NewWithClient(client, testBucket)
	t.Cleanup(func() {
		_ = s.Close()
		server.Stop()
	})
	return s, server
}

func TestUploadFetchDelete(t *testing.T) {
	s, server := newTestStore(t)
	ctx := context.Background()

	uri, err := s.Upload(ctx, "uploads/u1/2024/03/x-isracard.xlsx", []byte("statement"))
	require.NoError(t, err)
	assert.Equal(t, "gs://optim-test/uploads/u1/2024/03/x-isracard.xlsx", uri)

	obj, err := server.GetObject(testBucket, "uploads/u1/2024/03/x-isracard.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []byte("statement"), obj.Content)

	data, err := s.Fetch(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, []byte("statement"), data)

	require.NoError(t, s.Delete(ctx, uri))
	_, err = s.Fetch(ctx, uri)
	assert.Error(t, err)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, uri))
}

func TestUploadFile(t *testing.T) {
	s, server := newTestStore(t)
	path := filepath.Join(t.TempDir(), "max.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	uri, err := s.UploadFile(context.Background(), "manual/max.csv", path)
	require.NoError(t, err)
	assert.Equal(t, "gs://optim-test/manual/max.csv", uri)

	obj, err := server.GetObject(testBucket, "manual/max.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(obj.Content))

	_, err = s.UploadFile(context.Background(), "x", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://b/folder/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "folder/file.pdf", object)

	for _, bad := range []string{"s3://b/o", "gs://b", "gs://b/", "gs:///o"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromURI(t *testing.T) {
	assert.Equal(t, "file.pdf", FilenameFromURI("gs://bucket/folder/file.pdf"))
	assert.Equal(t, "bucket", FilenameFromURI("gs://bucket"))
}

func TestObjectName(t *testing.T) {
	name := ObjectName("u1", "/tmp/Isracard March.xlsx", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(name, "uploads/u1/2024/03/"), name)
	assert.True(t, strings.HasSuffix(name, "-Isracard March.xlsx"), name)
	assert.True(t, strings.HasPrefix(ObjectName("", "a.csv", time.Now()), "uploads/anonymous/"))
}
