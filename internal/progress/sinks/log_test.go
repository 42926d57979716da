package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

func TestLogSinkEmitsStructuredFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []crawler.Event{
		startedEvent("job-1"),
		pageEvent("job-1", "https://example.com/", "<html></html>"),
		errorEvent("job-1", "https://example.com/missing"),
		finishedEvent("job-1", true),
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.FilterMessage("crawl event").All()
	require.Len(t, entries, 4)

	started := entries[0].ContextMap()
	require.Equal(t, "crawl-started", started["event"])
	require.Equal(t, "proj", started["project_id"])

	page := entries[1].ContextMap()
	require.Equal(t, "https://example.com/", page["url"])
	require.EqualValues(t, 200, page["status"])

	failure := entries[2].ContextMap()
	require.Equal(t, "http_status", failure["kind"])

	finished := entries[3].ContextMap()
	require.Equal(t, true, finished["completed"])
}
