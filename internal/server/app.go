// Package server builds the crawler service from configuration and owns its
// process lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/seo-crawler/internal/api"
	"github.com/JakeFAU/seo-crawler/internal/clock/system"
	"github.com/JakeFAU/seo-crawler/internal/config"
	"github.com/JakeFAU/seo-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/seo-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/seo-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/seo-crawler/internal/hash/sha256"
	"github.com/JakeFAU/seo-crawler/internal/id/uuid"
	"github.com/JakeFAU/seo-crawler/internal/logging"
	"github.com/JakeFAU/seo-crawler/internal/metrics"
	"github.com/JakeFAU/seo-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/seo-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/seo-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/seo-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/seo-crawler/internal/robots"
	"github.com/JakeFAU/seo-crawler/internal/seo"
	"github.com/JakeFAU/seo-crawler/internal/storage"
	"github.com/JakeFAU/seo-crawler/internal/storage/gcs"
	memorystorage "github.com/JakeFAU/seo-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/seo-crawler/internal/storage/postgres"
)

// defaultNotificationTopic names the in-memory topic used when Pub/Sub is not
// configured.
const defaultNotificationTopic = "crawl-finished"

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger        *zap.Logger
	gcsFactory    gcs.ClientFactory
	pubsubOptions []option.ClientOption
	registry      *prometheus.Registry
}

// WithLogger uses logger instead of building one from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithGCSClientFactory overrides how the GCS client is created.
func WithGCSClientFactory(factory gcs.ClientFactory) Option {
	return func(o *buildOptions) { o.gcsFactory = factory }
}

// WithPubSubOptions passes client options to the Pub/Sub client.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(o *buildOptions) { o.pubsubOptions = append(o.pubsubOptions, opts...) }
}

// WithRegistry registers the service collectors on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	engine    *crawler.Engine
	robots    *robots.Cache
	hub       *progress.Hub
	store     crawler.CrawlStore
	pgStore   *pgstore.CrawlStore
	headless  *headless.Fetcher
	publisher crawler.Publisher
	pubsub    *gcppublisher.Publisher
	apiServer *api.Server

	closeBlobs func() error
	closeOnce  sync.Once
	closeErr   error
}

// Build creates the application's dependencies. On failure everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	app := &App{cfg: cfg, logger: logger, registry: registry, closeBlobs: func() error { return nil }}
	defer func() {
		if err != nil {
			_ = app.closeInfrastructure(context.Background())
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupBlobs(ctx, o.gcsFactory)
	if err != nil {
		return nil, err
	}
	if err = app.setupPublisher(ctx, o.pubsubOptions); err != nil {
		return nil, err
	}
	if err = app.setupProgress(ctx, blobs); err != nil {
		return nil, err
	}
	if err = app.setupEngine(); err != nil {
		return nil, err
	}
	if err = app.setupAPI(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, crawl records are kept in memory")
		a.store = memorystorage.NewCrawlStore()
		return nil
	}
	store, err := pgstore.NewCrawlStore(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		TablePrefix:     a.cfg.Database.TablePrefix,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		EnsureSchema:    a.cfg.Database.EnsureSchema,
	})
	if err != nil {
		return fmt.Errorf("crawl store init failed: %w", err)
	}
	a.pgStore = store
	a.store = store
	a.logger.Info("postgres crawl store initialized", zap.String("table_prefix", a.cfg.Database.TablePrefix))
	return nil
}

func (a *App) setupBlobs(ctx context.Context, factory gcs.ClientFactory) (crawler.BlobStore, error) {
	blobs, closeFn, err := storage.NewBlobStore(ctx, storage.Config{
		Backend:  storage.Backend(a.cfg.Storage.Backend),
		LocalDir: a.cfg.Storage.LocalDir,
		Bucket:   a.cfg.Storage.Bucket,
	}, factory, a.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("blob store init failed: %w", err)
	}
	a.closeBlobs = closeFn
	a.logger.Info("blob store initialized", zap.String("backend", a.cfg.Storage.Backend))
	return blobs, nil
}

func (a *App) setupPublisher(ctx context.Context, opts []option.ClientOption) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic, a.logger.Named("pubsub"), opts...)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context, blobs crawler.BlobStore) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	topic := a.cfg.PubSub.Topic
	if topic == "" && a.pubsub == nil {
		topic = defaultNotificationTopic
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.store, a.logger.Named("progress_store")),
		promSink,
		progresssinks.NewArchiveSink(blobs, sha256.New(), a.cfg.Storage.Prefix, a.logger.Named("progress_archive")),
		progresssinks.NewPublishSink(a.publisher, topic, system.New(), a.logger.Named("progress_publish")),
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		// The store sink must see every event.
		BlockOnFull: true,
		Logger:      a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func (a *App) setupEngine() error {
	opts := a.cfg.Crawler
	a.robots = robots.New(robots.Config{
		UserAgent: opts.UserAgent,
		TTL:       a.cfg.Robots.TTL,
		Timeout:   a.cfg.Robots.Timeout,
		MaxBytes:  a.cfg.Robots.MaxBytes,
	}, a.logger.Named("robots"))

	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   opts.UserAgent,
		Timeout:     a.cfg.HTTP.Timeout,
		MaxBodySize: a.cfg.HTTP.MaxBodyBytes,
		DomainQPS:   a.cfg.HTTP.DomainQPS,
	})
	strategies := []crawler.FetchStrategy{httpFetcher}
	if a.cfg.Headless.Enabled {
		fetcher, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         opts.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavigationTimeout,
			SettleDelay:       a.cfg.Headless.SettleDelay,
			DomainQPS:         a.cfg.Headless.DomainQPS,
			ExecPath:          a.cfg.Headless.ExecPath,
		}, a.logger.Named("headless"))
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = fetcher
		strategies = append(strategies, fetcher)
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	} else {
		strategies = append(strategies, headless.NewNoop())
		a.logger.Info("headless rendering disabled, rendered jobs fall back to HTTP")
	}

	engine, err := crawler.NewEngine(crawler.EngineConfig{
		Options:    opts,
		Strategies: strategies,
		Robots:     a.robots,
		Analyzer:   seo.New(),
		Detector:   crawler.NewDefaultDetector(),
		Observers:  []crawler.Observer{a.hub},
		Logger:     a.logger.Named("crawler"),
		Clock:      system.New(),
		IDs:        uuid.New(),
	})
	if err != nil {
		return fmt.Errorf("crawl engine init failed: %w", err)
	}
	a.engine = engine
	return nil
}

func (a *App) setupAPI(ctx context.Context) error {
	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		return fmt.Errorf("http metrics init failed: %w", err)
	}
	deps := api.Deps{
		Engine:      a.engine,
		Store:       a.store,
		Robots:      a.robots,
		IDs:         uuid.New(),
		Clock:       system.New(),
		Metrics:     httpMetrics,
		Gatherer:    prometheus.Gatherers{prometheus.DefaultGatherer, a.registry},
		BaseContext: context.WithoutCancel(ctx),
	}
	if a.pgStore != nil {
		deps.Ready = a.pgStore.Ping
	}
	a.apiServer, err = api.NewServer(deps, a.cfg, a.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Engine returns the crawl engine.
func (a *App) Engine() *crawler.Engine {
	return a.engine
}

// Store returns the crawl store that the progress sinks write to.
func (a *App) Store() crawler.CrawlStore {
	return a.store
}

// Crawl runs job in the foreground and flushes every sink before returning.
func (a *App) Crawl(ctx context.Context, job crawler.Job) (crawler.Result, error) {
	logger := logging.ForJob(a.logger, job.ID)
	logger.Info("crawl started", zap.Strings("seeds", job.URLs))
	result, err := a.engine.Crawl(ctx, job)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("crawl: %w", err)
	}
	logging.ForJob(a.logger, result.JobID).Info("crawl finished",
		zap.Bool("completed", result.Completed),
		zap.Int("pages", len(result.Pages)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// Run serves the API until ctx is canceled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("background crawls did not stop in time", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close flushes the progress sinks and releases every client. Later calls
// return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close(ctx)
	})
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop crawls: %w", err))
		}
	}
	if err := a.closeInfrastructure(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
	}
	if a.closeBlobs != nil {
		if err := a.closeBlobs(); err != nil {
			a.logger.Warn("blob store close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("close blob store: %w", err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	return errors.Join(errs...)
}
