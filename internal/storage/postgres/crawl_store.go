// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool used for crawl rows.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// EnsureSchema creates the tables on startup when they are missing.
	EnsureSchema bool
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// CrawlStore writes crawl jobs, pages and errors into Postgres.
type CrawlStore struct {
	pool   pool
	jobs   string
	pages  string
	errors string
}

// NewCrawlStore connects to Postgres using cfg.
func NewCrawlStore(ctx context.Context, cfg Config) (*CrawlStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCrawlStoreWithPool(p, cfg.TablePrefix)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewCrawlStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCrawlStoreWithPool(p pool, prefix string) (*CrawlStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if prefix == "" {
		prefix = "crawl"
	}
	if !validTableName.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &CrawlStore{
		pool:   p,
		jobs:   prefix + "_jobs",
		pages:  prefix + "_pages",
		errors: prefix + "_errors",
	}, nil
}

// Close releases the underlying pool resources.
func (s *CrawlStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity for readiness probes.
func (s *CrawlStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the crawl tables if they do not exist.
func (s *CrawlStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	urls JSONB NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	stats JSONB NOT NULL DEFAULT '{}'
)`, s.jobs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	status_code INT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes INT NOT NULL,
	load_time_ms BIGINT NOT NULL,
	depth INT NOT NULL,
	rendered BOOLEAN NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	seo_score INT NOT NULL,
	performance_score INT NOT NULL,
	accessibility_score INT NOT NULL,
	link_count INT NOT NULL,
	audit JSONB NOT NULL,
	PRIMARY KEY (job_id, url)
)`, s.pages, s.jobs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	message TEXT NOT NULL,
	kind TEXT NOT NULL,
	status_code INT NOT NULL,
	attempts INT NOT NULL,
	depth INT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
)`, s.errors, s.jobs),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateJob inserts a job row.
func (s *CrawlStore) CreateJob(ctx context.Context, job crawler.JobRecord) error {
	urls, err := json.Marshal(nonNil(job.URLs))
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (
	id, project_id, status, urls, submitted_at, started_at, finished_at, error_text, stats
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, s.jobs)
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		string(job.Status),
		urls,
		job.Submitted,
		job.Started,
		job.Finished,
		job.ErrorText,
		stats,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("job %s: %w", job.ID, crawler.ErrAlreadyExists)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// StartJob moves a job to running and stamps its start time once. A job that
// already reached a terminal status keeps it.
func (s *CrawlStore) StartJob(ctx context.Context, jobID string, started time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET
	status = CASE WHEN status IN ('succeeded', 'failed', 'canceled') THEN status ELSE $2 END,
	started_at = COALESCE(started_at, $3)
WHERE id = $1`, s.jobs)
	tag, err := s.pool.Exec(ctx, query, jobID, string(crawler.JobStatusRunning), started)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

// SavePage inserts a page row. A page saved twice for the same job keeps the
// first row.
func (s *CrawlStore) SavePage(ctx context.Context, page crawler.PageRecord) error {
	audit, err := json.Marshal(page.Audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (
	job_id, url, title, status_code, content_type, size_bytes, load_time_ms, depth, rendered,
	crawled_at, seo_score, performance_score, accessibility_score, link_count, audit
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (job_id, url) DO NOTHING`, s.pages)
	_, err = s.pool.Exec(ctx, query,
		page.JobID,
		page.URL,
		page.Title,
		page.StatusCode,
		page.ContentType,
		page.SizeBytes,
		page.LoadTimeMs,
		page.Depth,
		page.Rendered,
		page.CrawledAt,
		page.SEOScore,
		page.PerformanceScore,
		page.AccessibilityScore,
		page.LinkCount,
		audit,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// SaveError inserts a crawl error row.
func (s *CrawlStore) SaveError(ctx context.Context, record crawler.ErrorRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (
	job_id, url, message, kind, status_code, attempts, depth, occurred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.errors)
	_, err := s.pool.Exec(ctx, query,
		record.JobID,
		record.URL,
		record.Message,
		string(record.Kind),
		record.StatusCode,
		record.Attempts,
		record.Depth,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert crawl error: %w", err)
	}
	return nil
}

// FinishJob records the terminal status and aggregate stats.
func (s *CrawlStore) FinishJob(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	finished time.Time,
	stats crawler.Stats,
) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, finished_at = $3, stats = $4 WHERE id = $1`, s.jobs)
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), finished, payload)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

// GetJob retrieves a single job by ID.
func (s *CrawlStore) GetJob(ctx context.Context, jobID string) (crawler.JobRecord, error) {
	query := fmt.Sprintf(`SELECT id, project_id, status, urls, submitted_at, started_at, finished_at, error_text, stats
FROM %s WHERE id = $1`, s.jobs)
	var (
		job    crawler.JobRecord
		status string
		urls   []byte
		stats  []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.ProjectID,
		&status,
		&urls,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&job.ErrorText,
		&stats,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.JobRecord{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
		}
		return crawler.JobRecord{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = crawler.JobStatus(status)
	if err := unmarshalOptional(urls, &job.URLs); err != nil {
		return crawler.JobRecord{}, fmt.Errorf("decode urls: %w", err)
	}
	if err := unmarshalOptional(stats, &job.Stats); err != nil {
		return crawler.JobRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	return job, nil
}

// ListPages returns the pages of a job in crawl order.
func (s *CrawlStore) ListPages(ctx context.Context, jobID string) ([]crawler.PageRecord, error) {
	query := fmt.Sprintf(`SELECT job_id, url, title, status_code, content_type, size_bytes, load_time_ms, depth,
	rendered, crawled_at, seo_score, performance_score, accessibility_score, link_count, audit
FROM %s WHERE job_id = $1 ORDER BY crawled_at, url`, s.pages)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []crawler.PageRecord{}
	for rows.Next() {
		var (
			page  crawler.PageRecord
			audit []byte
		)
		if err := rows.Scan(
			&page.JobID,
			&page.URL,
			&page.Title,
			&page.StatusCode,
			&page.ContentType,
			&page.SizeBytes,
			&page.LoadTimeMs,
			&page.Depth,
			&page.Rendered,
			&page.CrawledAt,
			&page.SEOScore,
			&page.PerformanceScore,
			&page.AccessibilityScore,
			&page.LinkCount,
			&audit,
		); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		if err := unmarshalOptional(audit, &page.Audit); err != nil {
			return nil, fmt.Errorf("decode audit: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// ListErrors returns the crawl errors of a job in the order they occurred.
func (s *CrawlStore) ListErrors(ctx context.Context, jobID string) ([]crawler.ErrorRecord, error) {
	query := fmt.Sprintf(`SELECT job_id, url, message, kind, status_code, attempts, depth, occurred_at
FROM %s WHERE job_id = $1 ORDER BY occurred_at`, s.errors)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list crawl errors: %w", err)
	}
	defer rows.Close()

	records := []crawler.ErrorRecord{}
	for rows.Next() {
		var (
			record crawler.ErrorRecord
			kind   string
		)
		if err := rows.Scan(
			&record.JobID,
			&record.URL,
			&record.Message,
			&kind,
			&record.StatusCode,
			&record.Attempts,
			&record.Depth,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan crawl error row: %w", err)
		}
		record.Kind = crawler.ErrorKind(kind)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl errors: %w", err)
	}
	return records, nil
}

func unmarshalOptional(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
