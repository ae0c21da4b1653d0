package config

import (
	"strings"
	"time"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	Environment      string          `yaml:"environment"` // prod, dev or test
	LogLevel         string          `yaml:"log_level"`
	StateDir         string          `yaml:"state_dir"`
	ExportDir        string          `yaml:"export_dir"`
	SeedDir          string          `yaml:"seed_dir,omitempty"` // Overrides the built-in seed lists when set
	NumWorkers       int             `yaml:"num_workers"`
	SyncBatchSize    int             `yaml:"sync_batch_size"`        // Sink batch size once result volume is established
	SmallBatchSize   int             `yaml:"small_batch_size"`       // Sink batch size while result volume is low
	SmallVolumeLimit int64           `yaml:"small_volume_limit"`     // Result count at or below which SmallBatchSize applies
	LowWatermark     int64           `yaml:"low_watermark"`          // Pages with id below this are always exported
	ReviewTier       string          `yaml:"review_tier,omitempty"`  // Tier review links are enqueued into
	MinContentLength int             `yaml:"min_content_length"`     // Shorter pages are irrelevant
	FlushInterval    time.Duration   `yaml:"flush_interval"`         // How often pending results are checked against dead times
	FieldPolicy      FieldPolicy     `yaml:"field_policy"`
	Commit           CommitConfig    `yaml:"commit"`
	Queue            QueueConfig     `yaml:"queue"`
	Robots           RobotsConfig    `yaml:"robots"`
	Schedule         ScheduleConfig  `yaml:"schedule"`
	MCP              MCPConfig       `yaml:"mcp"`
	Metrics          MetricsConfig   `yaml:"metrics"`
	Extractor        ExtractorConfig `yaml:"extractor"`
	Links            LinksConfig     `yaml:"links"`
}

// FieldPolicy decides which missing product fields are reported.
// A row is reported when RequiredField is null, or when the number of null GroupFields is within [GroupMinNull, GroupMaxNull].
type FieldPolicy struct {
	RequiredField string   `yaml:"required_field"`
	GroupFields   []string `yaml:"group_fields"`
	GroupMinNull  int      `yaml:"group_min_null"`
	GroupMaxNull  int      `yaml:"group_max_null"`
}

// CommitConfig describes the SQL sink. An empty username means no sink is configured.
type CommitConfig struct {
	Driver        string `yaml:"driver"` // database/sql driver name
	DSN           string `yaml:"dsn"`
	Username      string `yaml:"username"`
	Table         string `yaml:"table"`
	Collection    string `yaml:"collection"` // Sink collection results are grouped under
	SyncBatchSize int    `yaml:"sync_batch_size"`
}

// HasSink reports whether a sink is configured
func (c CommitConfig) HasSink() bool {
	return strings.TrimSpace(c.Username) != ""
}

// QueueConfig controls the frontier pool
type QueueConfig struct {
	Durable bool `yaml:"durable"` // Back non-reentrant membership with badger
	Resume  bool `yaml:"resume"`  // Keep and requeue durable state from a previous run
}

// RobotsConfig enables robots.txt filtering of collected links
type RobotsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	UserAgent  string `yaml:"user_agent"`
	RobotsFile string `yaml:"robots_file"` // Local copy of the site's robots.txt
}

// ScheduleConfig drives the task scheduler
type ScheduleConfig struct {
	Cron            string   `yaml:"cron"`             // Cron spec evaluated for every task
	Tasks           []string `yaml:"tasks,omitempty"`  // Task names to run; empty means all
	SeedConcurrency int      `yaml:"seed_concurrency"` // Seed files loaded in parallel
	StateFile       string   `yaml:"state_file,omitempty"`
}

// MCPConfig configures the MCP tool server
type MCPConfig struct {
	Transport string `yaml:"transport"` // stdio or sse
	Port      int    `yaml:"port"`
}

// MetricsConfig configures the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// FieldSelector maps one output column to a selector.
// Selectors prefixed with "xpath:" are XPath expressions; anything else is CSS.
type FieldSelector struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"` // Attribute to read instead of text
}

// ExtractorConfig describes the selector-driven extractor
type ExtractorConfig struct {
	Name   string          `yaml:"name"`
	Root   bool            `yaml:"root"` // Root extractors own product-detail pages
	Fields []FieldSelector `yaml:"fields"`
}

// LinksConfig holds the selectors used for hyperlink collection
type LinksConfig struct {
	BestSellerSelector       string   `yaml:"best_seller_selector"`
	SecondaryListingSelector string   `yaml:"secondary_listing_selector"`
	SecondaryReviewSelector  string   `yaml:"secondary_review_selector"`
	ReviewPaginationSelector string   `yaml:"review_pagination_selector"`
	DropParams               []string `yaml:"drop_params,omitempty"`      // Tracking parameters removed from collected links
	ExcludePatterns          []string `yaml:"exclude_patterns,omitempty"` // Regexes on the link path; matching links are never enqueued
}

// IsDevOrTest reports whether the instance runs in a development or test environment
func (c *AppConfig) IsDevOrTest() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "dev" || env == "test"
}

// EffectiveSyncBatchSize returns the sink batch size, capped at 10 on dev and test instances
func (c *AppConfig) EffectiveSyncBatchSize() int {
	if c.IsDevOrTest() {
		return devSyncBatchSize
	}
	if c.Commit.SyncBatchSize > 0 {
		return c.Commit.SyncBatchSize
	}
	return c.SyncBatchSize
}
