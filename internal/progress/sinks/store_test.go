package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/storage/memory"
)

func TestStoreSinkCreatesMissingJob(t *testing.T) {
	t.Parallel()

	store := memory.NewCrawlStore()
	sink := NewStoreSink(store, nil)
	ctx := context.Background()

	require.NoError(t, sink.Consume(ctx, []crawler.Event{
		startedEvent("job-1"),
		pageEvent("job-1", "https://example.com/", "<html></html>"),
		errorEvent("job-1", "https://example.com/missing"),
		finishedEvent("job-1", true),
	}))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, job.Status)
	require.Equal(t, "proj", job.ProjectID)
	require.Equal(t, []string{"https://example.com/"}, job.URLs)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)
	require.Equal(t, 1, job.Stats.PagesCrawled)

	pages, err := store.ListPages(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, 70, pages[0].SEOScore)
	require.Equal(t, int64(250), pages[0].LoadTimeMs)
	require.Equal(t, 1, pages[0].LinkCount)

	errs, err := store.ListErrors(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Equal(t, crawler.ErrorKindHTTPStatus, errs[0].Kind)
}

func TestStoreSinkStartsQueuedJob(t *testing.T) {
	t.Parallel()

	store := memory.NewCrawlStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, crawler.JobRecord{
		ID:        "job-1",
		Status:    crawler.JobStatusQueued,
		Submitted: testTime.Add(-time.Minute),
	}))

	sink := NewStoreSink(store, nil)
	require.NoError(t, sink.Consume(ctx, []crawler.Event{startedEvent("job-1")}))
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusRunning, job.Status)
	require.Equal(t, testTime.Add(-time.Minute), job.Submitted)

	require.NoError(t, sink.Consume(ctx, []crawler.Event{finishedEvent("job-1", false)}))
	job, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
}

func TestStoreSinkKeepsCanceledStatus(t *testing.T) {
	t.Parallel()

	store := memory.NewCrawlStore()
	ctx := context.Background()
	sink := NewStoreSink(store, nil)
	require.NoError(t, sink.Consume(ctx, []crawler.Event{startedEvent("job-1")}))
	require.NoError(t, store.FinishJob(ctx, "job-1", crawler.JobStatusCanceled, testTime, crawler.Stats{}))

	require.NoError(t, sink.Consume(ctx, []crawler.Event{finishedEvent("job-1", false)}))
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCanceled, job.Status)
	require.Equal(t, 1, job.Stats.PagesCrawled)
}

func TestStoreSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(memory.NewCrawlStore(), nil)
	err := sink.Consume(context.Background(), []crawler.Event{finishedEvent("never-started", true)})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	var nilSink *StoreSink
	require.NoError(t, nilSink.Consume(context.Background(), []crawler.Event{startedEvent("x")}))
}
