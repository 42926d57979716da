package sinks

import (
	"time"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

var testTime = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func startedEvent(jobID string) crawler.Event {
	return crawler.Event{
		Type:      crawler.EventCrawlStarted,
		JobID:     jobID,
		ProjectID: "proj",
		Time:      testTime,
		URLs:      []string{"https://example.com/"},
	}
}

func pageEvent(jobID, url, html string) crawler.Event {
	return crawler.Event{
		Type:  crawler.EventPageCrawled,
		JobID: jobID,
		Time:  testTime,
		Page: &crawler.CrawledPage{
			URL:         url,
			Title:       "Title",
			StatusCode:  200,
			ContentType: "text/html",
			Size:        len(html),
			LoadTime:    250 * time.Millisecond,
			HTML:        html,
			Links:       []string{"https://example.com/a"},
			CrawledAt:   testTime,
			SEO:         crawler.SEOAudit{SEOScore: 70, PerformanceScore: 100},
		},
	}
}

func errorEvent(jobID, url string) crawler.Event {
	return crawler.Event{
		Type:  crawler.EventCrawlError,
		JobID: jobID,
		Time:  testTime,
		Error: &crawler.CrawlError{
			URL:        url,
			Message:    "HTTP 404: Not Found",
			Kind:       crawler.ErrorKindHTTPStatus,
			StatusCode: 404,
			Attempts:   1,
			Timestamp:  testTime,
		},
	}
}

func finishedEvent(jobID string, completed bool) crawler.Event {
	end := testTime.Add(30 * time.Second)
	return crawler.Event{
		Type:      crawler.EventCrawlFinished,
		JobID:     jobID,
		ProjectID: "proj",
		Time:      end,
		Result: &crawler.Result{
			JobID:         jobID,
			Completed:     completed,
			StartTime:     testTime,
			EndTime:       end,
			TotalDuration: 30 * time.Second,
			Pages:         []crawler.CrawledPage{{URL: "https://example.com/"}},
			Errors:        []crawler.CrawlError{{URL: "https://example.com/missing"}},
			Stats:         crawler.Stats{PagesCrawled: 1, Errors: 1, SuccessRate: 0.5},
		},
	}
}
