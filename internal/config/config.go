package config

import (
	"fmt"
	"time"

	"govaffairs-crawler/internal/checksum"
)

type Config struct {
	HTTP          HttpConfig          `yaml:"http"`
	Crawl         CrawlConfig         `yaml:"crawl"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Robots        RobotsConfig        `yaml:"robots"`
	Storage       StorageConfig       `yaml:"storage"`
	Mirror        MirrorConfig        `yaml:"mirror"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Report        ReportConfig        `yaml:"report"`
	Observability ObservabilityConfig `yaml:"observability"`
	TargetsFile   string              `yaml:"targets_file"`
	Targets       []Target            `yaml:"targets"`
}

// Target is one configured search query against one site.
type Target struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	CrawlerType string `yaml:"crawler_type"`
	Enabled     *bool  `yaml:"enabled"`
	Description string `yaml:"description"`
}

// ID is the stable identifier of the target, derived from its URL.
func (t Target) ID() string {
	return checksum.TargetID(t.URL)
}

// IsEnabled treats a missing flag as enabled.
func (t Target) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// DisplayName falls back to the key when no name was configured.
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Key
}

type HttpConfig struct {
	UserAgent                 string `yaml:"user_agent"`
	RequestTimeoutMS          int    `yaml:"request_timeout_ms"`
	ConnectTimeoutMS          int    `yaml:"connect_timeout_ms"`
	MaxIdleConnections        int    `yaml:"max_idle_connections"`
	MaxIdleConnectionsPerHost int    `yaml:"max_idle_connections_per_host"`
	IdleConnectionTimeoutS    int    `yaml:"idle_connection_timeout_s"`
	AcceptLanguage            string `yaml:"accept_language"`
}

type CrawlConfig struct {
	MaxRetries             *int          `yaml:"max_retries"`
	MaxPages               int           `yaml:"max_pages"`
	DelayBetweenRequestsMS *int          `yaml:"delay_between_requests_ms"`
	ParallelTargets        int           `yaml:"parallel_targets"`
	RunBudgetS             int           `yaml:"run_budget_s"`
	Backoff                BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Strategy  string `yaml:"strategy"`
	BaseMS    *int   `yaml:"base_ms"`
	MaxMS     int    `yaml:"max_ms"`
	JitterPct int    `yaml:"jitter_pct"`
}

type RateLimitConfig struct {
	RPM   int `yaml:"rpm"`
	Burst int `yaml:"burst"`
}

type RobotsConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheTTLHours int  `yaml:"cache_ttl_hours"`
}

type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	RecordEmptyRuns *bool  `yaml:"record_empty_runs"`
}

// ShouldRecordEmptyRuns defaults to true so "checked, nothing new" runs
// show up in history.
func (s StorageConfig) ShouldRecordEmptyRuns() bool {
	return s.RecordEmptyRuns == nil || *s.RecordEmptyRuns
}

type MirrorConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn"`
	Table            string `yaml:"table"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
}

type SchedulerConfig struct {
	Mode      string `yaml:"mode"`
	IntervalS int    `yaml:"interval_s"`
	CronExpr  string `yaml:"cron_expr"`
}

type ReportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

type ObservabilityConfig struct {
	LogPath        string `yaml:"log_path"`
	LogLevel       string `yaml:"log_level"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	LogMaxBackups  int    `yaml:"log_max_backups"`
	LogMaxAgeDays  int    `yaml:"log_max_age_days"`
	DisableConsole bool   `yaml:"disable_console"`
}

const (
	defaultMaxRetries             = 3
	defaultDelayBetweenRequestsMS = 1000
	defaultBackoffBaseMS          = 1000
)

func intPtr(v int) *int {
	return &v
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if c.HTTP.RequestTimeoutMS == 0 {
		c.HTTP.RequestTimeoutMS = 30000
	}
	if c.HTTP.ConnectTimeoutMS == 0 {
		c.HTTP.ConnectTimeoutMS = 10000
	}
	if c.HTTP.MaxIdleConnections == 0 {
		c.HTTP.MaxIdleConnections = 100
	}
	if c.HTTP.MaxIdleConnectionsPerHost == 0 {
		c.HTTP.MaxIdleConnectionsPerHost = 10
	}
	if c.HTTP.IdleConnectionTimeoutS == 0 {
		c.HTTP.IdleConnectionTimeoutS = 90
	}
	if c.HTTP.AcceptLanguage == "" {
		c.HTTP.AcceptLanguage = "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2"
	}
	if c.Crawl.MaxPages == 0 {
		c.Crawl.MaxPages = 20
	}
	// nil means unset; an explicit 0 is kept
	if c.Crawl.MaxRetries == nil {
		c.Crawl.MaxRetries = intPtr(defaultMaxRetries)
	}
	if c.Crawl.DelayBetweenRequestsMS == nil {
		c.Crawl.DelayBetweenRequestsMS = intPtr(defaultDelayBetweenRequestsMS)
	}
	if c.Crawl.ParallelTargets == 0 {
		c.Crawl.ParallelTargets = 1
	}
	if c.Crawl.Backoff.Strategy == "" {
		c.Crawl.Backoff.Strategy = "linear"
	}
	if c.Crawl.Backoff.BaseMS == nil {
		c.Crawl.Backoff.BaseMS = intPtr(defaultBackoffBaseMS)
	}
	if c.Crawl.Backoff.MaxMS == 0 {
		c.Crawl.Backoff.MaxMS = 30000
	}
	if c.RateLimit.RPM == 0 {
		c.RateLimit.RPM = 60
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Robots.CacheTTLHours == 0 {
		c.Robots.CacheTTLHours = 12
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Mirror.Table == "" {
		c.Mirror.Table = "crawled_records"
	}
	if c.Mirror.CommandTimeoutMS == 0 {
		c.Mirror.CommandTimeoutMS = 5000
	}
	if c.Scheduler.Mode == "" {
		c.Scheduler.Mode = "oneshot"
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "result"
	}
	if c.Observability.LogPath == "" {
		c.Observability.LogPath = "crawler.log"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogMaxSizeMB == 0 {
		c.Observability.LogMaxSizeMB = 50
	}
	for i := range c.Targets {
		if c.Targets[i].CrawlerType == "" {
			c.Targets[i].CrawlerType = "sichuan_fgw"
		}
	}
}

// Validation
func (c *Config) Validate() error {
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.RequestTimeoutMS <= 0 {
		return fmt.Errorf("http.request_timeout_ms must be > 0")
	}
	if c.HTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("http.connect_timeout_ms must be > 0")
	}
	if c.GetMaxRetries() < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.GetDelayBetweenRequests() < 0 {
		return fmt.Errorf("crawl.delay_between_requests_ms must be >= 0")
	}
	if c.Crawl.ParallelTargets <= 0 {
		return fmt.Errorf("crawl.parallel_targets must be > 0")
	}
	if c.Crawl.RunBudgetS < 0 {
		return fmt.Errorf("crawl.run_budget_s must be >= 0")
	}
	if s := c.Crawl.Backoff.Strategy; s != "linear" && s != "exponential" {
		return fmt.Errorf("crawl.backoff.strategy must be 'linear' or 'exponential'")
	}
	if c.GetBackoffBase() < 0 {
		return fmt.Errorf("crawl.backoff.base_ms must be >= 0")
	}
	if c.GetBackoffMax() < c.GetBackoffBase() {
		return fmt.Errorf("crawl.backoff.max_ms must be >= crawl.backoff.base_ms")
	}
	if c.Crawl.Backoff.JitterPct < 0 || c.Crawl.Backoff.JitterPct > 100 {
		return fmt.Errorf("crawl.backoff.jitter_pct must be between 0 and 100")
	}
	if c.RateLimit.RPM <= 0 {
		return fmt.Errorf("rate_limit.rpm must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be > 0")
	}
	if c.Robots.Enabled && c.Robots.CacheTTLHours <= 0 {
		return fmt.Errorf("robots.cache_ttl_hours must be > 0")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Mirror.Enabled {
		if c.Mirror.Driver != "mssql" && c.Mirror.Driver != "postgres" {
			return fmt.Errorf("mirror.driver must be 'mssql' or 'postgres'")
		}
		if c.Mirror.DSN == "" {
			return fmt.Errorf("mirror.dsn is required when mirror.enabled is true")
		}
		if c.Mirror.CommandTimeoutMS <= 0 {
			return fmt.Errorf("mirror.command_timeout_ms must be > 0")
		}
	}
	if c.Scheduler.Mode != "interval" && c.Scheduler.Mode != "cron" && c.Scheduler.Mode != "oneshot" {
		return fmt.Errorf("scheduler.mode must be 'interval', 'cron' or 'oneshot'")
	}
	if c.Scheduler.Mode == "interval" && c.Scheduler.IntervalS <= 0 {
		return fmt.Errorf("scheduler.interval_s must be > 0 when mode is 'interval'")
	}
	if c.Scheduler.Mode == "cron" && c.Scheduler.CronExpr == "" {
		return fmt.Errorf("scheduler.cron_expr must be set when mode is 'cron'")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("observability.log_level is required")
	}
	return validateTargets(c.Targets)
}

// Getters
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.HTTP.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) GetIdleConnectionTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleConnectionTimeoutS) * time.Second
}

// GetMaxRetries is the number of retries after the first failed attempt.
func (c *Config) GetMaxRetries() int {
	return intOr(c.Crawl.MaxRetries, defaultMaxRetries)
}

func (c *Config) GetDelayBetweenRequests() time.Duration {
	return time.Duration(intOr(c.Crawl.DelayBetweenRequestsMS, defaultDelayBetweenRequestsMS)) * time.Millisecond
}

func (c *Config) GetRunBudget() time.Duration {
	return time.Duration(c.Crawl.RunBudgetS) * time.Second
}

func (c *Config) GetBackoffBase() time.Duration {
	return time.Duration(intOr(c.Crawl.Backoff.BaseMS, defaultBackoffBaseMS)) * time.Millisecond
}

func (c *Config) GetBackoffMax() time.Duration {
	return time.Duration(c.Crawl.Backoff.MaxMS) * time.Millisecond
}

func (c *Config) GetRobotsCacheTTL() time.Duration {
	return time.Duration(c.Robots.CacheTTLHours) * time.Hour
}

func (c *Config) GetMirrorCommandTimeout() time.Duration {
	return time.Duration(c.Mirror.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetSchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalS) * time.Second
}

// EnabledTargets returns targets in configured order, skipping disabled ones.
func (c *Config) EnabledTargets() []Target {
	var out []Target
	for _, t := range c.Targets {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// FindTarget looks a target up by key, falling back to its ID.
func (c *Config) FindTarget(key string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Key == key || t.ID() == key {
			return t, true
		}
	}
	return Target{}, false
}
