package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsTimeoutDoesNotNest(t *testing.T) {
	t.Parallel()

	inner := &FetchError{Kind: ErrorKindTimeout, URL: "https://a.test/", Err: fmt.Errorf("colly fetch canceled: %w", context.DeadlineExceeded)}
	got := asTimeout("https://a.test/", inner)
	require.Same(t, inner, got)
	require.Equal(t, "timeout: colly fetch canceled: context deadline exceeded", got.Error())

	network := &FetchError{Kind: ErrorKindNetwork, URL: "https://a.test/", Err: context.DeadlineExceeded}
	got = asTimeout("https://a.test/", network)
	kind, _ := ClassifyError(got)
	require.Equal(t, ErrorKindTimeout, kind)
	require.Equal(t, ErrorKindNetwork, network.Kind)

	got = asTimeout("https://a.test/", context.DeadlineExceeded)
	var fetchErr *FetchError
	require.ErrorAs(t, got, &fetchErr)
	require.Equal(t, ErrorKindTimeout, fetchErr.Kind)
	require.True(t, errors.Is(got, context.DeadlineExceeded))
}
