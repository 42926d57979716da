package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type stubFactory struct {
	client *storage.Client
	err    error
}

func (s stubFactory) NewClient(context.Context) (*storage.Client, error) {
	return s.client, s.err
}

func jsonClient(t *testing.T, status int, body string) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{
			Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: status,
					Body:       io.NopCloser(strings.NewReader(body)),
					Header:     http.Header{"Content-Type": {"application/json"}},
					Request:    r,
				}, nil
			}),
		}),
	)
	require.NoError(t, err)
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(jsonClient(t, http.StatusOK, "{}"), Config{})
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Bucket: "snapshots"}, stubFactory{client: jsonClient(t, http.StatusOK, `{"name":"snapshots"}`)}, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Close())
}

func TestOpenBucketMissing(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Bucket: "snapshots"}, stubFactory{client: jsonClient(t, http.StatusNotFound, `{"error":{"code":404}}`)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get GCS bucket")
}

func TestOpenClientError(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Bucket: "snapshots"}, stubFactory{err: errors.New("no credentials")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create GCS client")

	_, err = Open(context.Background(), Config{}, nil, nil)
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	const bucket = "snapshots"
	const object = "pages/job-1/abc.html"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucket))
		assert.Equal(t, object, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<html>snapshot</html>")
		assert.Contains(t, string(body), "text/html")
		_, _ = fmt.Fprintf(w, `{"name":%q,"bucket":%q}`, object, bucket)
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: bucket})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), object, "text/html", bytes.NewBufferString("<html>snapshot</html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://snapshots/pages/job-1/abc.html", uri)
	require.NoError(t, store.Close())
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: "snapshots"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.html", "text/html", bytes.NewBufferString("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), " ", "text/html", bytes.NewBufferString("x"))
	require.Error(t, err)
}
