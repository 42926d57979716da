// Package crawler implements the SEO crawl engine: job and page types, the
// per-job frontier state, politeness and retry policies, and the orchestrator
// that drives fetchers, the robots cache and the SEO analyzer.
package crawler
