package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const (
	devSyncBatchSize        = 10
	defaultSyncBatchSize    = 50
	defaultSmallBatchSize   = 10
	defaultSmallVolumeLimit = 100
	defaultLowWatermark     = 500
	defaultMinContentLength = 1024
)

// DefaultFieldPolicy is the product-page null field policy
func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{
		RequiredField: "asin",
		GroupFields:   []string{"price", "soldby", "shipsfrom"},
		GroupMinNull:  1,
		GroupMaxNull:  2,
	}
}

// DefaultExtractor is the product-page extractor used when no fields are configured
func DefaultExtractor() ExtractorConfig {
	return ExtractorConfig{
		Name: "asin",
		Root: true,
		Fields: []FieldSelector{
			{Name: "asin", Selector: `xpath://input[@id="ASIN"]/@value`},
			{Name: "title", Selector: "#productTitle"},
			{Name: "price", Selector: "#corePrice_feature_div .a-offscreen, #priceblock_ourprice"},
			{Name: "soldby", Selector: "#sellerProfileTriggerId, #merchant-info a"},
			{Name: "shipsfrom", Selector: `xpath://div[@tabular-attribute-name="Ships from"]//span[contains(@class,"tabular-buybox-text-message")]`},
			{Name: "rating", Selector: "#acrPopover", Attr: "title"},
			{Name: "reviewsurl", Selector: `a[data-hook="see-all-reviews-link-foot"]`, Attr: "href"},
		},
	}
}

// DefaultLinks are the listing and review selectors for the current site layout
func DefaultLinks() LinksConfig {
	return LinksConfig{
		BestSellerSelector:       `#zg-ordered-list a[href*="/dp/"], #gridItemRoot a[href*="/dp/"], .p13n-gridRow a[href*="/dp/"]`,
		SecondaryListingSelector: `ul.a-pagination li.a-last a, .zg_pagination li.zg_page a`,
		SecondaryReviewSelector:  `#cm_cr-pagination_bar ul.a-pagination li a`,
		ReviewPaginationSelector: `#cm_cr-pagination_bar ul.a-pagination li.a-last a`,
		DropParams:               []string{"ref_", "pf_rd_p", "pf_rd_r", "pd_rd_w", "pd_rd_r", "pd_rd_wg", "pd_rd_i", "qid", "sr", "crid"},
	}
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.Environment == "" {
		c.Environment = "prod"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}
	if c.ExportDir == "" {
		warnings = append(warnings, "export_dir is empty, defaulting to './export'")
		c.ExportDir = "./export"
	}
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	// Batch sizes
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = defaultSyncBatchSize
	}
	if c.SmallBatchSize <= 0 {
		c.SmallBatchSize = defaultSmallBatchSize
	}
	if c.SmallVolumeLimit <= 0 {
		c.SmallVolumeLimit = defaultSmallVolumeLimit
	}
	if c.SmallBatchSize > c.SyncBatchSize {
		warnings = append(warnings, fmt.Sprintf(
			"small_batch_size (%d) > sync_batch_size (%d), using sync_batch_size for both",
			c.SmallBatchSize, c.SyncBatchSize))
		c.SmallBatchSize = c.SyncBatchSize
	}
	if c.IsDevOrTest() {
		warnings = append(warnings, fmt.Sprintf("environment %q: sink sync batch size forced to %d", c.Environment, devSyncBatchSize))
	}

	if c.LowWatermark < 0 {
		warnings = append(warnings, "low_watermark cannot be negative, setting to 0 (export only without sink)")
		c.LowWatermark = 0
	} else if c.LowWatermark == 0 {
		c.LowWatermark = defaultLowWatermark
	}

	if c.ReviewTier == "" {
		c.ReviewTier = queue.TierLower2.String()
	}
	if _, errTier := queue.ParseTier(c.ReviewTier); errTier != nil {
		return warnings, fmt.Errorf("%w: review_tier: %w", utils.ErrConfigValidation, errTier)
	}

	if c.MinContentLength <= 0 {
		c.MinContentLength = defaultMinContentLength
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}

	if err := c.validateFieldPolicy(); err != nil {
		return warnings, err
	}

	w, err := c.validateCommit()
	warnings = append(warnings, w...)
	if err != nil {
		return warnings, err
	}

	if c.Robots.Enabled {
		if c.Robots.RobotsFile == "" {
			return warnings, fmt.Errorf("%w: robots.enabled requires robots.robots_file", utils.ErrConfigValidation)
		}
		if c.Robots.UserAgent == "" {
			c.Robots.UserAgent = "amazon-crawler"
		}
	}

	if err := c.validateSchedule(); err != nil {
		return warnings, err
	}

	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.MCP.Transport != "stdio" && c.MCP.Transport != "sse" {
		return warnings, fmt.Errorf("%w: mcp.transport must be stdio or sse, got %q", utils.ErrConfigValidation, c.MCP.Transport)
	}
	if c.MCP.Port <= 0 {
		c.MCP.Port = 8090
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if len(c.Extractor.Fields) == 0 {
		name := c.Extractor.Name
		c.Extractor = DefaultExtractor()
		if name != "" {
			c.Extractor.Name = name
		}
	}
	if c.Extractor.Name == "" {
		warnings = append(warnings, "extractor.name is empty, defaulting to 'asin'")
		c.Extractor.Name = "asin"
	}
	for i, f := range c.Extractor.Fields {
		if f.Name == "" || f.Selector == "" {
			return warnings, fmt.Errorf("%w: extractor field #%d needs name and selector", utils.ErrConfigValidation, i+1)
		}
	}

	c.applyLinkDefaults()
	if _, err := utils.CompileRegexPatterns(c.Links.ExcludePatterns); err != nil {
		return warnings, fmt.Errorf("links.exclude_patterns: %w", err)
	}

	return warnings, nil
}

func (c *AppConfig) validateFieldPolicy() error {
	def := DefaultFieldPolicy()
	p := &c.FieldPolicy
	if p.RequiredField == "" {
		p.RequiredField = def.RequiredField
	}
	if len(p.GroupFields) == 0 {
		p.GroupFields = def.GroupFields
		if p.GroupMinNull == 0 && p.GroupMaxNull == 0 {
			p.GroupMinNull, p.GroupMaxNull = def.GroupMinNull, def.GroupMaxNull
		}
	}
	if p.GroupMinNull < 0 || p.GroupMaxNull < p.GroupMinNull || p.GroupMaxNull > len(p.GroupFields) {
		return fmt.Errorf("%w: field_policy range [%d, %d] invalid for %d group fields",
			utils.ErrConfigValidation, p.GroupMinNull, p.GroupMaxNull, len(p.GroupFields))
	}
	return nil
}

func (c *AppConfig) validateCommit() (warnings []string, err error) {
	cc := &c.Commit
	if cc.Driver == "" {
		cc.Driver = "sqlite"
	}
	if cc.Table == "" {
		cc.Table = "amazon_results"
	}
	if cc.Collection == "" {
		cc.Collection = "amazon"
	}
	if !cc.HasSink() {
		if cc.DSN != "" {
			warnings = append(warnings, "commit.dsn is set but commit.username is empty; sink disabled, results are exported")
		}
		return warnings, nil
	}
	if cc.DSN == "" {
		return warnings, fmt.Errorf("%w: commit.username is set but commit.dsn is empty", utils.ErrConfigValidation)
	}
	if strings.ContainsAny(cc.Table, " ;'\"") {
		return warnings, fmt.Errorf("%w: commit.table %q is not a plain identifier", utils.ErrConfigValidation, cc.Table)
	}
	return warnings, nil
}

func (c *AppConfig) validateSchedule() error {
	s := &c.Schedule
	if s.Cron == "" {
		s.Cron = "@every 1m"
	}
	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return fmt.Errorf("%w: schedule.cron %q: %w", utils.ErrConfigValidation, s.Cron, err)
	}
	for _, name := range s.Tasks {
		if _, _, err := task.ByName(name); err != nil {
			return fmt.Errorf("%w: schedule.tasks: %w", utils.ErrConfigValidation, err)
		}
	}
	if s.SeedConcurrency <= 0 {
		s.SeedConcurrency = 2
	}
	if s.StateFile == "" {
		s.StateFile = filepath.Join(c.StateDir, "schedule_state.json")
	}
	return nil
}

func (c *AppConfig) applyLinkDefaults() {
	def := DefaultLinks()
	l := &c.Links
	if l.BestSellerSelector == "" {
		l.BestSellerSelector = def.BestSellerSelector
	}
	if l.SecondaryListingSelector == "" {
		l.SecondaryListingSelector = def.SecondaryListingSelector
	}
	if l.SecondaryReviewSelector == "" {
		l.SecondaryReviewSelector = def.SecondaryReviewSelector
	}
	if l.ReviewPaginationSelector == "" {
		l.ReviewPaginationSelector = def.ReviewPaginationSelector
	}
	if l.DropParams == nil {
		l.DropParams = def.DropParams
	}
}
