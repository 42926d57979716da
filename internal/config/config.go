// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

// EnvPrefix is prepended to every environment override, e.g. SEOCRAWLER_SERVER_PORT.
const EnvPrefix = "SEOCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig           `mapstructure:"server"`
	Auth         AuthConfig             `mapstructure:"auth"`
	Crawler      crawler.Options        `mapstructure:"crawler"`
	Robots       RobotsConfig           `mapstructure:"robots"`
	HTTP         HTTPConfig             `mapstructure:"http"`
	Headless     HeadlessConfig         `mapstructure:"headless"`
	Progress     ProgressConfig         `mapstructure:"progress"`
	Storage      StorageConfig          `mapstructure:"storage"`
	Database     DatabaseConfig         `mapstructure:"database"`
	PubSub       PubSubConfig           `mapstructure:"pubsub"`
	Logging      LoggingConfig          `mapstructure:"logging"`
	StandardJobs map[string]crawler.Job `mapstructure:"standard_jobs"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RobotsConfig tunes the shared robots.txt cache.
type RobotsConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	DomainQPS    float64       `mapstructure:"domain_qps"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	DomainQPS         float64       `mapstructure:"domain_qps"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// ProgressConfig tunes the event hub that feeds the sinks.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// StorageConfig selects where HTML snapshots and crawl manifests go.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig controls the crawl store. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// PubSubConfig holds the crawl-finished notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	opts := crawler.DefaultOptions()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("crawler.user_agent", opts.UserAgent)
	v.SetDefault("crawler.timeout", opts.Timeout.String())
	v.SetDefault("crawler.retries", opts.Retries)
	v.SetDefault("crawler.crawl_delay", opts.CrawlDelay.String())
	v.SetDefault("crawler.max_depth", opts.MaxDepth)
	v.SetDefault("crawler.max_pages", opts.MaxPages)
	v.SetDefault("crawler.concurrency", opts.Concurrency)
	v.SetDefault("crawler.respect_robots", opts.RespectRobots)
	v.SetDefault("crawler.max_links_per_page", opts.MaxLinksPerPage)
	v.SetDefault("crawler.max_html_bytes", opts.MaxHTMLBytes)
	v.SetDefault("crawler.retry_base_delay", opts.RetryBaseDelay.String())
	v.SetDefault("crawler.retry_max_delay", opts.RetryMaxDelay.String())
	v.SetDefault("crawler.mode", string(opts.Mode))
	v.SetDefault("robots.ttl", "1h")
	v.SetDefault("robots.timeout", "10s")
	v.SetDefault("robots.max_bytes", 512<<10)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.domain_qps", 0)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.navigation_timeout", "45s")
	v.SetDefault("headless.settle_delay", "500ms")
	v.SetDefault("headless.domain_qps", 0)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.log_events", false)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "seo-crawler")
	v.SetDefault("database.table_prefix", "crawl")
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. All failures are
// reported together.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	if c.HTTP.DomainQPS < 0 || c.Headless.DomainQPS < 0 {
		errs = append(errs, errors.New("domain_qps must be >= 0"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.MaxPages <= 0 {
		errs = append(errs, errors.New("crawler.max_pages must be > 0"))
	}
	if c.Crawler.MaxDepth < 0 {
		errs = append(errs, errors.New("crawler.max_depth must be >= 0"))
	}
	if c.Crawler.Timeout <= 0 {
		errs = append(errs, errors.New("crawler.timeout must be > 0"))
	}
	if !c.Crawler.Mode.Valid() {
		errs = append(errs, fmt.Errorf("crawler.mode %q is not one of http, rendered, auto", c.Crawler.Mode))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id is required when pubsub.topic is set"))
	}
	for name, job := range c.StandardJobs {
		if len(job.URLs) == 0 {
			errs = append(errs, fmt.Errorf("standard_jobs.%s.urls must not be empty", name))
		}
	}
	return errors.Join(errs...)
}

// StandardJob returns a copy of the named job template with a fresh ID slot.
func (c Config) StandardJob(name string) (crawler.Job, bool) {
	job, ok := c.StandardJobs[strings.ToLower(name)]
	if !ok {
		return crawler.Job{}, false
	}
	job.ID = ""
	job.URLs = append([]string(nil), job.URLs...)
	return job, true
}
