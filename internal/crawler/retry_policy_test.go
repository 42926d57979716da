package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := NewExponentialRetryPolicy(3, time.Second, 30*time.Second)
	require.Equal(t, 3, p.MaxAttempts())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: NewStatusError("u", http.StatusBadGateway), want: true},
		{name: "rate limited", err: NewStatusError("u", http.StatusTooManyRequests), want: true},
		{name: "request timeout status", err: NewStatusError("u", http.StatusRequestTimeout), want: true},
		{name: "not found", err: NewStatusError("u", http.StatusNotFound), want: false},
		{name: "forbidden", err: NewStatusError("u", http.StatusForbidden), want: false},
		{name: "timeout", err: &FetchError{Kind: ErrorKindTimeout, URL: "u"}, want: true},
		{name: "network", err: errors.New("connection refused"), want: true},
		{name: "render", err: &FetchError{Kind: ErrorKindRender, URL: "u"}, want: true},
		{name: "internal", err: &FetchError{Kind: ErrorKindInternal, URL: "u"}, want: false},
		{name: "non html", err: fmt.Errorf("x: %w", ErrNonHTMLContent), want: false},
		{name: "canceled", err: fmt.Errorf("x: %w", context.Canceled), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, 1))
		})
	}
	require.False(t, p.ShouldRetry(NewStatusError("u", http.StatusBadGateway), 3))
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := NewExponentialRetryPolicy(5, time.Second, 5*time.Second)
	require.Equal(t, 2*time.Second, p.Backoff(1))
	require.Equal(t, 4*time.Second, p.Backoff(2))
	require.Equal(t, 5*time.Second, p.Backoff(3))

	defaults := NewExponentialRetryPolicy(0, 0, 0)
	require.Equal(t, 1, defaults.MaxAttempts())
	require.Equal(t, time.Second, defaults.Backoff(4))
}

func TestFetchErrorFormatting(t *testing.T) {
	err := NewStatusError("https://example.com/x", http.StatusNotFound)
	require.Equal(t, "HTTP 404: Not Found", err.Error())
	require.Equal(t, "HTTP 599", NewStatusError("u", 599).Error())

	wrapped := &FetchError{Kind: ErrorKindNetwork, URL: "u", Err: errors.New("reset")}
	require.Equal(t, "network: reset", wrapped.Error())
	require.Equal(t, "timeout", (&FetchError{Kind: ErrorKindTimeout}).Error())

	kind, status := ClassifyError(fmt.Errorf("wrap: %w", err))
	require.Equal(t, ErrorKindHTTPStatus, kind)
	require.Equal(t, http.StatusNotFound, status)
	kind, _ = ClassifyError(context.DeadlineExceeded)
	require.Equal(t, ErrorKindTimeout, kind)
	kind, _ = ClassifyError(errors.New("i/o timeout"))
	require.Equal(t, ErrorKindTimeout, kind)
}
