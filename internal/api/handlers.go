package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/urlutil"
)

// Analyze outcomes.
const (
	statusStarted        = "started"
	statusAlreadyRunning = "already_running"
)

type startResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type crawlResponse struct {
	Job     crawler.JobRecord `json:"job"`
	Running bool              `json:"running"`
}

type robotsResponse struct {
	URL          string   `json:"url"`
	UserAgent    string   `json:"user_agent"`
	Allowed      bool     `json:"allowed"`
	CrawlDelayMs int64    `json:"crawl_delay_ms,omitempty"`
	Sitemaps     []string `json:"sitemaps"`
}

// analyzeProject starts a crawl for a project unless one is already active.
func (s *Server) analyzeProject(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(chi.URLParam(r, "project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id required")
		return
	}
	var req jobRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := s.newJob(w, req, projectID)
	if !ok {
		return
	}
	jobID, err := s.start(r.Context(), job)
	switch {
	case errors.Is(err, errProjectBusy):
		writeJSON(w, http.StatusOK, startResponse{JobID: jobID, Status: statusAlreadyRunning})
	case err != nil:
		s.logger.Error("start analyze crawl", zap.String("project_id", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
	default:
		writeJSON(w, http.StatusAccepted, startResponse{JobID: jobID, Status: statusStarted})
	}
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := s.newJob(w, req, strings.TrimSpace(req.ProjectID))
	if !ok {
		return
	}
	s.respondStarted(w, r, job)
}

func (s *Server) submitStandardCrawl(w http.ResponseWriter, r *http.Request) {
	var req standardJobRequest
	if err := decodeJSON(r, &req, false); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing job name")
		return
	}
	job, ok := s.cfg.StandardJob(req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, "standard job template not found")
		return
	}
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return
	}
	job.ID = jobID
	if projectID := strings.TrimSpace(req.ProjectID); projectID != "" {
		job.ProjectID = projectID
	}
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondStarted(w, r, job)
}

func (s *Server) respondStarted(w http.ResponseWriter, r *http.Request, job crawler.Job) {
	existing, err := s.start(r.Context(), job)
	switch {
	case errors.Is(err, errProjectBusy):
		writeJSON(w, http.StatusConflict, startResponse{JobID: existing, Status: statusAlreadyRunning})
	case err != nil:
		s.logger.Error("start crawl", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
	default:
		writeJSON(w, http.StatusAccepted, startResponse{JobID: job.ID, Status: statusStarted})
	}
}

// newJob assigns an ID and validates the request, writing a 4xx/5xx response
// on failure.
func (s *Server) newJob(w http.ResponseWriter, req jobRequest, projectID string) (crawler.Job, bool) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return crawler.Job{}, false
	}
	job := req.toJob(jobID, projectID)
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return crawler.Job{}, false
	}
	return job, true
}

// start records the job as queued and launches it. When the project is busy it
// returns the active job ID with errProjectBusy.
func (s *Server) start(ctx context.Context, job crawler.Job) (string, error) {
	if existing, err := s.runs.reserve(job.ID, job.ProjectID); err != nil {
		return existing, err
	}
	record := crawler.JobRecord{
		ID:        job.ID,
		ProjectID: job.ProjectID,
		Status:    crawler.JobStatusQueued,
		URLs:      append([]string(nil), job.URLs...),
		Submitted: s.deps.Clock.Now(),
	}
	if err := s.deps.Store.CreateJob(ctx, record); err != nil {
		s.runs.release(job.ID)
		return "", fmt.Errorf("create job: %w", err)
	}
	s.runs.launch(job)
	s.logger.Info("crawl accepted",
		zap.String("job_id", job.ID),
		zap.String("project_id", job.ProjectID),
		zap.Int("seeds", len(job.URLs)),
	)
	return job.ID, nil
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := s.lookupJob(w, r, jobID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{Job: job, Running: s.deps.Engine.IsRunning(jobID)})
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, ok := s.lookupJob(w, r, jobID); !ok {
		return
	}
	pages, err := s.deps.Store.ListPages(r.Context(), jobID)
	if err != nil {
		s.logger.Error("list pages", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch job pages")
		return
	}
	if pages == nil {
		pages = []crawler.PageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "pages": pages})
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, ok := s.lookupJob(w, r, jobID); !ok {
		return
	}
	records, err := s.deps.Store.ListErrors(r.Context(), jobID)
	if err != nil {
		s.logger.Error("list errors", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch job errors")
		return
	}
	if records == nil {
		records = []crawler.ErrorRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "errors": records})
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	engineCanceled := s.deps.Engine.CancelCrawl(jobID)
	runnerCanceled := s.runs.cancel(jobID)
	if !engineCanceled && !runnerCanceled {
		job, ok := s.lookupJob(w, r, jobID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"job_id": jobID,
			"status": string(job.Status),
			"error":  "job is not running",
		})
		return
	}
	err := s.deps.Store.FinishJob(r.Context(), jobID, crawler.JobStatusCanceled, s.deps.Clock.Now(), crawler.Stats{})
	if err != nil {
		s.logger.Warn("record cancel", zap.String("job_id", jobID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(crawler.JobStatusCanceled)})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request, jobID string) (crawler.JobRecord, bool) {
	job, err := s.deps.Store.GetJob(r.Context(), jobID)
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return crawler.JobRecord{}, false
	}
	if err != nil {
		s.logger.Error("get job", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return crawler.JobRecord{}, false
	}
	return job, true
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Stats())
}

func (s *Server) updateOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode != nil && !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown fetch mode %q", *req.Mode))
		return
	}
	opts := s.deps.Engine.UpdateOptions(req.toPatch())
	s.logger.Info("default options updated",
		zap.String("user_agent", opts.UserAgent),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("max_depth", opts.MaxDepth),
		zap.String("mode", string(opts.Mode)),
	)
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) inspectRobots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Robots == nil {
		writeError(w, http.StatusServiceUnavailable, "robots cache not configured")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if !urlutil.IsValidURL(target) {
		writeError(w, http.StatusBadRequest, "valid http(s) url required")
		return
	}
	userAgent := r.URL.Query().Get("user_agent")
	if userAgent == "" {
		userAgent = s.deps.Engine.Stats().DefaultOptions.UserAgent
	}
	ctx := r.Context()
	resp := robotsResponse{
		URL:       target,
		UserAgent: userAgent,
		Allowed:   s.deps.Robots.IsAllowed(ctx, target, userAgent, nil),
		Sitemaps:  s.deps.Robots.Sitemaps(ctx, target, userAgent),
	}
	if delay, ok := s.deps.Robots.CrawlDelay(ctx, target, userAgent); ok {
		resp.CrawlDelayMs = delay.Milliseconds()
	}
	if resp.Sitemaps == nil {
		resp.Sitemaps = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearRobotsCache(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Robots == nil {
		writeError(w, http.StatusServiceUnavailable, "robots cache not configured")
		return
	}
	s.deps.Robots.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
