package api

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/logging"
)

// errProjectBusy is returned by runner.reserve when the project already has a
// crawl in flight.
var errProjectBusy = errors.New("project already has an active crawl")

type pendingRun struct {
	projectID string
	ctx       context.Context
	cancel    context.CancelFunc
}

// runner launches crawls in the background. It tracks each job from the moment
// it is accepted, before the engine registers it, so a project cannot start two
// crawls and a cancel issued before the crawl begins still takes effect.
type runner struct {
	engine Engine
	store  crawler.CrawlStore
	clock  crawler.Clock
	logger *zap.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	jobs     map[string]*pendingRun
	projects map[string]string
}

func newRunner(base context.Context, engine Engine, store crawler.CrawlStore, clock crawler.Clock, logger *zap.Logger) *runner {
	if base == nil {
		base = context.Background()
	}
	ctx, stop := context.WithCancel(base)
	return &runner{
		engine:   engine,
		store:    store,
		clock:    clock,
		logger:   logger,
		base:     ctx,
		stop:     stop,
		jobs:     make(map[string]*pendingRun),
		projects: make(map[string]string),
	}
}

// reserve claims jobID (and its project, when set). It returns the job already
// holding the project together with errProjectBusy.
func (r *runner) reserve(jobID, projectID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if projectID != "" {
		if existing, ok := r.projects[projectID]; ok {
			return existing, errProjectBusy
		}
		if existing, ok := r.engine.ActiveJobForProject(projectID); ok {
			return existing, errProjectBusy
		}
		r.projects[projectID] = jobID
	}
	ctx, cancel := context.WithCancel(r.base)
	r.jobs[jobID] = &pendingRun{projectID: projectID, ctx: ctx, cancel: cancel}
	return "", nil
}

func (r *runner) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.jobs[jobID]
	if !ok {
		return
	}
	delete(r.jobs, jobID)
	run.cancel()
	if run.projectID != "" && r.projects[run.projectID] == jobID {
		delete(r.projects, run.projectID)
	}
}

// launch runs a reserved job on the context created by reserve. A job canceled
// before launch is recorded as canceled and never reaches the engine.
func (r *runner) launch(job crawler.Job) {
	r.mu.Lock()
	run, ok := r.jobs[job.ID]
	r.mu.Unlock()
	if !ok {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(job.ID)

		logger := logging.ForJob(r.logger, job.ID)
		if run.ctx.Err() != nil {
			logger.Info("crawl canceled before start")
			r.finish(job.ID, crawler.JobStatusCanceled)
			return
		}
		result, err := r.engine.Crawl(run.ctx, job)
		if err != nil {
			logger.Error("crawl rejected", zap.Error(err))
			r.finish(job.ID, crawler.JobStatusFailed)
			return
		}
		logger.Info("crawl finished",
			zap.Bool("completed", result.Completed),
			zap.Int("pages", len(result.Pages)),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.TotalDuration),
		)
	}()
}

// cancel aborts a job the runner owns. It reports false for unknown jobs.
func (r *runner) cancel(jobID string) bool {
	r.mu.Lock()
	run, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

func (r *runner) finish(jobID string, status crawler.JobStatus) {
	ctx := context.WithoutCancel(r.base)
	if err := r.store.FinishJob(ctx, jobID, status, r.clock.Now(), crawler.Stats{}); err != nil {
		r.logger.Warn("record job status", zap.String("job_id", jobID), zap.String("status", string(status)), zap.Error(err))
	}
}

// shutdown cancels every running crawl and waits for them to return or for ctx
// to end.
func (r *runner) shutdown(ctx context.Context) error {
	r.stop()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until every launched crawl has returned.
func (r *runner) wait() {
	r.wg.Wait()
}
