package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/test/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/test/1", "/test/2", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("GET", "404")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
	require.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)
}

func TestNewHTTPRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTP(reg)
	require.NoError(t, err)
	_, err = NewHTTP(reg)
	require.Error(t, err)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)
	m.Observe(http.MethodGet, "/healthz", http.StatusOK, 0)

	srv := httptest.NewServer(Handler(prometheus.Gatherers{reg, prometheus.DefaultGatherer}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "seocrawler_http_requests_total"))
	require.Contains(t, string(body), "go_goroutines")
}
