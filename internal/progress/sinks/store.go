package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// StoreSink persists crawl events through a crawler.CrawlStore: the job row on
// start and finish, one row per page and one per error.
type StoreSink struct {
	store  crawler.CrawlStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(store crawler.CrawlStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume writes each event in order. It respects ctx deadlines and returns
// the first store error.
func (s *StoreSink) Consume(ctx context.Context, batch []crawler.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.consumeEvent(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) consumeEvent(ctx context.Context, evt crawler.Event) error {
	switch evt.Type {
	case crawler.EventCrawlStarted:
		return s.handleStarted(ctx, evt)
	case crawler.EventPageCrawled:
		if err := s.store.SavePage(ctx, crawler.NewPageRecord(evt.JobID, *evt.Page)); err != nil {
			return fmt.Errorf("save page %s: %w", evt.Page.URL, err)
		}
	case crawler.EventCrawlError:
		if err := s.store.SaveError(ctx, crawler.ErrorRecord{JobID: evt.JobID, CrawlError: *evt.Error}); err != nil {
			return fmt.Errorf("save crawl error %s: %w", evt.Error.URL, err)
		}
	case crawler.EventCrawlFinished:
		return s.handleFinished(ctx, evt)
	}
	return nil
}

// handleStarted marks a submitted job as running, creating the row for jobs
// that were started without going through the API.
func (s *StoreSink) handleStarted(ctx context.Context, evt crawler.Event) error {
	err := s.store.StartJob(ctx, evt.JobID, evt.Time)
	if err == nil {
		return nil
	}
	if !errors.Is(err, crawler.ErrNotFound) {
		return fmt.Errorf("start job: %w", err)
	}
	started := evt.Time
	if err := s.store.CreateJob(ctx, crawler.JobRecord{
		ID:        evt.JobID,
		ProjectID: evt.ProjectID,
		Status:    crawler.JobStatusRunning,
		URLs:      evt.URLs,
		Submitted: evt.Time,
		Started:   &started,
	}); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *StoreSink) handleFinished(ctx context.Context, evt crawler.Event) error {
	status := crawler.JobStatusSucceeded
	if !evt.Result.Completed {
		status = crawler.JobStatusFailed
		// A cancel request already recorded the terminal state; only the
		// stats are filled in.
		if job, err := s.store.GetJob(ctx, evt.JobID); err == nil && job.Status == crawler.JobStatusCanceled {
			s.logger.Debug("job already canceled; keeping status", zap.String("job_id", evt.JobID))
			status = crawler.JobStatusCanceled
		}
	}
	if err := s.store.FinishJob(ctx, evt.JobID, status, evt.Result.EndTime, evt.Result.Stats); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
