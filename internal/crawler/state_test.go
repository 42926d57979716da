package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCrawlStateFrontier(t *testing.T) {
	s := newCrawlState(time.Unix(0, 0))
	require.True(t, s.enqueue(frontierEntry{url: "a", depth: 0}))
	require.False(t, s.enqueue(frontierEntry{url: "a", depth: 1}))
	require.True(t, s.enqueue(frontierEntry{url: "b", depth: 2}))
	s.markSeen("c")
	require.False(t, s.enqueue(frontierEntry{url: "c"}))

	batch := s.popBatch(5)
	require.Len(t, batch, 2)
	require.Equal(t, "a", batch[0].url)
	require.Nil(t, s.popBatch(1))

	require.True(t, s.markProcessed("a"))
	require.False(t, s.markProcessed("a"))

	require.True(t, s.addPage(CrawledPage{URL: "a"}))
	require.False(t, s.addPage(CrawledPage{URL: "a"}))
	s.addError(CrawlError{URL: "b"})

	counts := s.counts()
	require.Equal(t, stateCounts{processed: 1, pending: 0, pages: 1, errors: 1, depth: 2}, counts)

	pages, errs := s.snapshot()
	require.Len(t, pages, 1)
	require.Len(t, errs, 1)
	pages[0].URL = "mutated"
	again, _ := s.snapshot()
	require.Equal(t, "a", again[0].URL)

	_, ok := s.domainDelay("example.com")
	require.False(t, ok)
	s.setDomainDelay("example.com", time.Second)
	d, ok := s.domainDelay("example.com")
	require.True(t, ok)
	require.Equal(t, time.Second, d)
}

func TestComputeStats(t *testing.T) {
	pages := []CrawledPage{
		{StatusCode: 200, LoadTime: time.Second, SEO: SEOAudit{SEOScore: 80, PerformanceScore: 90}},
		{StatusCode: 200, LoadTime: 3 * time.Second, SEO: SEOAudit{SEOScore: 60, PerformanceScore: 70}},
	}
	errs := []CrawlError{{URL: "x"}, {URL: "y"}}
	stats := computeStats(pages, errs, 10*time.Second)
	require.Equal(t, 2, stats.PagesCrawled)
	require.Equal(t, 2, stats.Errors)
	require.InDelta(t, 0.5, stats.SuccessRate, 0.0001)
	require.Equal(t, 2*time.Second, stats.AverageLoadTime)
	require.InDelta(t, 70, stats.AverageSEOScore, 0.0001)
	require.InDelta(t, 80, stats.AveragePerformanceScore, 0.0001)
	require.Equal(t, map[int]int{200: 2}, stats.StatusCodes)

	empty := computeStats(nil, nil, 0)
	require.Zero(t, empty.SuccessRate)
	require.Nil(t, empty.StatusCodes)
}

func TestTruncateHTML(t *testing.T) {
	body := []byte("héllo")
	got, truncated := truncateHTML(body, 2)
	require.True(t, truncated)
	require.Equal(t, "h", got)

	got, truncated = truncateHTML(body, 0)
	require.False(t, truncated)
	require.Equal(t, "héllo", got)
}

func TestEventValidate(t *testing.T) {
	require.Error(t, Event{Type: EventCrawlStarted}.Validate())
	require.NoError(t, Event{Type: EventCrawlStarted, JobID: "j"}.Validate())
	require.Error(t, Event{Type: EventPageCrawled, JobID: "j"}.Validate())
	require.NoError(t, Event{Type: EventPageCrawled, JobID: "j", Page: &CrawledPage{}}.Validate())
	require.Error(t, Event{Type: EventCrawlError, JobID: "j"}.Validate())
	require.Error(t, Event{Type: EventCrawlProgress, JobID: "j"}.Validate())
	require.Error(t, Event{Type: EventCrawlFinished, JobID: "j"}.Validate())
	require.Error(t, Event{Type: "bogus", JobID: "j"}.Validate())
}
