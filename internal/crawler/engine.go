package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Options    Options
	Strategies []FetchStrategy
	Robots     RobotsPolicy
	Analyzer   Analyzer
	Detector   Detector
	Observers  []Observer
	Logger     *zap.Logger
	Pauser     Pauser
	Clock      Clock
	IDs        IDGenerator
}

// Engine runs crawl jobs. One Engine serves any number of concurrent jobs; the
// robots cache and fetch strategies it holds are shared between them.
type Engine struct {
	mu         sync.RWMutex
	opts       Options
	observers  []Observer
	active     map[string]*activeCrawl
	strategies map[FetchMode]FetchStrategy
	robots     RobotsPolicy
	analyzer   Analyzer
	detector   Detector
	logger     *zap.Logger
	pauser     Pauser
	clock      Clock
	ids        IDGenerator
}

type activeCrawl struct {
	projectID string
	started   time.Time
	cancel    context.CancelFunc
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewEngine builds an Engine. An Analyzer and at least one strategy are required.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		opts:       cfg.Options.withFallbacks(),
		observers:  append([]Observer(nil), cfg.Observers...),
		active:     make(map[string]*activeCrawl),
		strategies: make(map[FetchMode]FetchStrategy, len(cfg.Strategies)),
		robots:     cfg.Robots,
		analyzer:   cfg.Analyzer,
		detector:   cfg.Detector,
		logger:     logger,
		pauser:     cfg.Pauser,
		clock:      cfg.Clock,
		ids:        cfg.IDs,
	}
	for _, strategy := range cfg.Strategies {
		if strategy != nil {
			e.strategies[strategy.Mode()] = strategy
		}
	}
	if len(e.strategies) == 0 {
		return nil, errors.New("at least one fetch strategy is required")
	}
	if e.pauser == nil {
		e.pauser = &timerPauseController{}
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.detector == nil {
		e.detector = NewDefaultDetector()
	}
	return e, nil
}

// Subscribe registers an observer for events of jobs started afterwards.
func (e *Engine) Subscribe(observer Observer) {
	if observer == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// Options returns the current default options.
func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// UpdateOptions merges patch into the default options and returns the result.
// Running jobs keep the options they started with.
func (e *Engine) UpdateOptions(patch OptionsPatch) Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = e.opts.Apply(patch)
	e.logger.Info("crawler options updated", zap.Any("options", e.opts))
	return e.opts
}

// Stats reports active crawls, the robots cache and the default options.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	opts := e.opts
	e.mu.RUnlock()
	sort.Strings(ids)

	stats := EngineStats{
		ActiveCrawls:   len(ids),
		ActiveJobIDs:   ids,
		DefaultOptions: opts,
		Mode:           opts.Mode,
	}
	if e.robots != nil {
		stats.RobotsCache = e.robots.Stats()
	}
	return stats
}

// IsRunning reports whether jobID is active.
func (e *Engine) IsRunning(jobID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.active[jobID]
	return ok
}

// ActiveJobForProject returns the running job of projectID, if any.
func (e *Engine) ActiveJobForProject(projectID string) (string, bool) {
	if projectID == "" {
		return "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, crawl := range e.active {
		if crawl.projectID == projectID {
			return id, true
		}
	}
	return "", false
}

// CancelCrawl stops jobID and removes it from the active registry. In-flight
// fetches are aborted through their context; their results are discarded.
func (e *Engine) CancelCrawl(jobID string) bool {
	e.mu.Lock()
	crawl, ok := e.active[jobID]
	if ok {
		delete(e.active, jobID)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	crawl.cancel()
	ActiveCrawls.Dec()
	e.logger.Info("crawl canceled", zap.String("job_id", jobID))
	return true
}

// Crawl runs job to completion and returns its result. The error is non-nil only
// when the job is invalid or its ID is already running; every started job
// resolves to a Result, with Completed=false when it was canceled or failed.
func (e *Engine) Crawl(ctx context.Context, job Job) (Result, error) {
	plan, err := newJobPlan(job, e.Options())
	if err != nil {
		return Result{}, err
	}
	if plan.id == "" {
		plan.id, err = e.newID()
		if err != nil {
			return Result{}, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.register(plan, cancel); err != nil {
		return Result{}, err
	}
	defer e.unregister(plan.id)

	e.mu.RLock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.RUnlock()

	run := newCrawlRun(e, plan, observers)
	return run.execute(runCtx), nil
}

func (e *Engine) newID() (string, error) {
	if e.ids == nil {
		return uuid.NewString(), nil
	}
	id, err := e.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id, nil
}

func (e *Engine) register(plan *jobPlan, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[plan.id]; exists {
		return fmt.Errorf("%w: %s", ErrJobRunning, plan.id)
	}
	e.active[plan.id] = &activeCrawl{projectID: plan.projectID, started: e.clock.Now(), cancel: cancel}
	ActiveCrawls.Inc()
	return nil
}

func (e *Engine) unregister(jobID string) {
	e.mu.Lock()
	_, ok := e.active[jobID]
	delete(e.active, jobID)
	e.mu.Unlock()
	if ok {
		ActiveCrawls.Dec()
	}
}

// openSession picks the strategy for mode, falling back to plain HTTP when a
// rendered session cannot start. Auto mode wraps an HTTP session.
func (e *Engine) openSession(ctx context.Context, mode FetchMode, logger *zap.Logger) (FetchSession, error) {
	if mode == FetchModeAuto {
		httpSession, err := e.openSession(ctx, FetchModeHTTP, logger)
		if err != nil {
			return nil, err
		}
		return newAutoSession(httpSession, e.strategies[FetchModeRendered], e.detector, logger), nil
	}
	if strategy, ok := e.strategies[mode]; ok {
		session, err := strategy.NewSession(ctx)
		if err == nil {
			return session, nil
		}
		if mode == FetchModeHTTP {
			return nil, fmt.Errorf("open %s session: %w", mode, err)
		}
		logger.Warn("fetch session failed; falling back to http", zap.String("mode", string(mode)), zap.Error(err))
	}
	strategy, ok := e.strategies[FetchModeHTTP]
	if !ok {
		return nil, fmt.Errorf("no fetch strategy for mode %q", mode)
	}
	session, err := strategy.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open http session: %w", err)
	}
	return session, nil
}
