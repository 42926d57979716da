package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewBufferString("content"))
	require.NoError(t, err)
	require.Equal(t, "memory://path/page.html", uri)

	body, ok := store.Object("path/page.html")
	require.True(t, ok)
	require.Equal(t, "content", string(body))
	body[0] = 'C'
	again, _ := store.Object("path/page.html")
	require.Equal(t, "content", string(again))

	_, ok = store.Object("missing")
	require.False(t, ok)
}
