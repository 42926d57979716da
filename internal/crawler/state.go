package crawler

import (
	"sync"
	"time"
)

type frontierEntry struct {
	url   string
	depth int
	seed  string
}

// crawlState is the per-job mutable aggregate. Every frontier and processed-set
// mutation happens under mu, so a URL is never dispatched twice.
type crawlState struct {
	mu        sync.Mutex
	frontier  []frontierEntry
	seen      map[string]struct{}
	processed map[string]struct{}
	pages     []CrawledPage
	pageIndex map[string]int
	errors    []CrawlError
	depth     int
	delays    map[string]time.Duration
	startTime time.Time
}

func newCrawlState(start time.Time) *crawlState {
	return &crawlState{
		seen:      make(map[string]struct{}),
		processed: make(map[string]struct{}),
		pageIndex: make(map[string]int),
		delays:    make(map[string]time.Duration),
		startTime: start,
	}
}

// enqueue adds entry to the frontier unless its URL was ever queued before.
func (s *crawlState) enqueue(entry frontierEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[entry.url]; ok {
		return false
	}
	s.seen[entry.url] = struct{}{}
	s.frontier = append(s.frontier, entry)
	return true
}

// markSeen prevents url from ever entering the frontier (used for redirect targets).
func (s *crawlState) markSeen(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[url] = struct{}{}
}

// popBatch removes up to n entries from the frontier.
func (s *crawlState) popBatch(n int) []frontierEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.frontier) {
		n = len(s.frontier)
	}
	if n <= 0 {
		return nil
	}
	batch := make([]frontierEntry, n)
	copy(batch, s.frontier[:n])
	s.frontier = s.frontier[n:]
	for _, entry := range batch {
		if entry.depth > s.depth {
			s.depth = entry.depth
		}
	}
	return batch
}

// markProcessed adds url to the processed set, reporting false if it was already there.
func (s *crawlState) markProcessed(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[url]; ok {
		return false
	}
	s.processed[url] = struct{}{}
	return true
}

func (s *crawlState) addPage(page CrawledPage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.pageIndex[page.URL]; dup {
		return false
	}
	s.pageIndex[page.URL] = len(s.pages)
	s.pages = append(s.pages, page)
	return true
}

func (s *crawlState) addError(crawlErr CrawlError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, crawlErr)
}

func (s *crawlState) domainDelay(domain string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delays[domain]
	return d, ok
}

func (s *crawlState) setDomainDelay(domain string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[domain] = delay
}

type stateCounts struct {
	processed int
	pending   int
	pages     int
	errors    int
	depth     int
}

func (s *crawlState) counts() stateCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateCounts{
		processed: len(s.processed),
		pending:   len(s.frontier),
		pages:     len(s.pages),
		errors:    len(s.errors),
		depth:     s.depth,
	}
}

// snapshot copies the accumulated pages and errors.
func (s *crawlState) snapshot() ([]CrawledPage, []CrawlError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]CrawledPage, len(s.pages))
	copy(pages, s.pages)
	errs := make([]CrawlError, len(s.errors))
	copy(errs, s.errors)
	return pages, errs
}
