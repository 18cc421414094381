// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures every knob of a crawl.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Paths      PathsConfig      `mapstructure:"paths"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	Search     SearchConfig     `mapstructure:"search"`
	Status     StatusConfig     `mapstructure:"status"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Export     ExportConfig     `mapstructure:"export"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PathsConfig locates the durable files.
type PathsConfig struct {
	URLs       string `mapstructure:"urls"`
	Records    string `mapstructure:"records"`
	SearchList string `mapstructure:"search_list"`
}

// BrowserConfig configures the browser session and the navigation recovery
// policy.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	Locale         string        `mapstructure:"locale"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	ExecPath       string        `mapstructure:"exec_path"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RecreateDelay  time.Duration `mapstructure:"recreate_delay"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	TitleTimeout   time.Duration `mapstructure:"title_timeout"`
	MinTitleLen    int           `mapstructure:"min_title_len"`
	PostReadyDelay time.Duration `mapstructure:"post_ready_delay"`
}

// DiscoveryConfig bounds the search traversal.
type DiscoveryConfig struct {
	MaxPages       int           `mapstructure:"max_pages"`
	MaxLinks       int           `mapstructure:"max_links"`
	Pagination     string        `mapstructure:"pagination"`
	PageParam      string        `mapstructure:"page_param"`
	LinkSelectors  []string      `mapstructure:"link_selectors"`
	AllowedHosts   []string      `mapstructure:"allowed_hosts"`
	NextSelectors  []string      `mapstructure:"next_selectors"`
	NextLabels     []string      `mapstructure:"next_labels"`
	ConsentLabels  []string      `mapstructure:"consent_labels"`
	ClickSettle    time.Duration `mapstructure:"click_settle"`
	Sitemaps       []string      `mapstructure:"sitemaps"`
	SitemapMaxURLs int           `mapstructure:"sitemap_max_urls"`
}

// ExtractionConfig controls the detail page loop.
type ExtractionConfig struct {
	MaxLinks       int           `mapstructure:"max_links"`
	SoftRetryDelay time.Duration `mapstructure:"soft_retry_delay"`
	BodySelector   string        `mapstructure:"body_selector"`
	DenialPhrases  []string      `mapstructure:"denial_phrases"`
	TitleSeparator string        `mapstructure:"title_separator"`
}

// RulesConfig holds the acceptance thresholds.
type RulesConfig struct {
	MinYear         int     `mapstructure:"min_year"`
	MaxKM           int     `mapstructure:"max_km"`
	MaxPrice        int     `mapstructure:"max_price"`
	MinDealerRating float64 `mapstructure:"min_dealer_rating"`
}

// PacingConfig bounds the human-like pauses and the block cool-down.
type PacingConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	PageMin             time.Duration `mapstructure:"page_min"`
	PageMax             time.Duration `mapstructure:"page_max"`
	ItemMin             time.Duration `mapstructure:"item_min"`
	ItemMax             time.Duration `mapstructure:"item_max"`
	RestEvery           int           `mapstructure:"rest_every"`
	RestDelay           time.Duration `mapstructure:"rest_delay"`
	MinInterval         time.Duration `mapstructure:"min_interval"`
	BlockBackoffInitial time.Duration `mapstructure:"block_backoff_initial"`
	BlockBackoffMax     time.Duration `mapstructure:"block_backoff_max"`
}

// SearchConfig describes the result listing query used by the splitter.
type SearchConfig struct {
	Base      string              `mapstructure:"base"`
	Params    map[string]string   `mapstructure:"params"`
	Repeated  map[string][]string `mapstructure:"repeated"`
	FromParam string              `mapstructure:"from_param"`
	ToParam   string              `mapstructure:"to_param"`
	Split     SplitConfig         `mapstructure:"split"`
}

// SplitConfig drives year-range bisection.
type SplitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	FromYear int  `mapstructure:"from_year"`
	ToYear   int  `mapstructure:"to_year"`
	Ceiling  int  `mapstructure:"ceiling"`
	PageSize int  `mapstructure:"page_size"`
}

// StatusConfig configures the optional status server.
type StatusConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// DBConfig enables the Postgres record mirror when DSN is set.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig enables record events when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ExportConfig selects where run snapshots go. GCS wins when both are set.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("paths.urls", "data/urls.txt")
	v.SetDefault("paths.records", "data/records.csv")
	v.SetDefault("paths.search_list", "data/searches.txt")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.locale", "es-ES")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.nav_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.retry_delay", "5s")
	v.SetDefault("browser.recreate_delay", "1500ms")
	v.SetDefault("browser.settle_delay", "1500ms")
	v.SetDefault("browser.title_timeout", "15s")
	v.SetDefault("browser.min_title_len", 3)
	v.SetDefault("browser.post_ready_delay", "800ms")

	v.SetDefault("discovery.max_pages", 200)
	v.SetDefault("discovery.max_links", 20000)
	v.SetDefault("discovery.pagination", "click")
	v.SetDefault("discovery.page_param", "pageNumber")
	v.SetDefault("discovery.click_settle", "2s")
	v.SetDefault("discovery.sitemap_max_urls", 50000)

	v.SetDefault("extraction.max_links", 20000)
	v.SetDefault("extraction.soft_retry_delay", "12s")
	v.SetDefault("extraction.body_selector", "body")
	v.SetDefault("extraction.title_separator", "para")

	v.SetDefault("rules.min_year", 2013)
	v.SetDefault("rules.max_km", 150000)
	v.SetDefault("rules.max_price", 30000)
	v.SetDefault("rules.min_dealer_rating", 0)

	v.SetDefault("pacing.enabled", true)
	v.SetDefault("pacing.page_min", "2500ms")
	v.SetDefault("pacing.page_max", "5s")
	v.SetDefault("pacing.item_min", "3500ms")
	v.SetDefault("pacing.item_max", "7500ms")
	v.SetDefault("pacing.rest_every", 25)
	v.SetDefault("pacing.rest_delay", "20s")
	v.SetDefault("pacing.min_interval", "1s")
	v.SetDefault("pacing.block_backoff_initial", "30s")
	v.SetDefault("pacing.block_backoff_max", "5m")

	v.SetDefault("search.from_param", "fr")
	v.SetDefault("search.to_param", "to")
	v.SetDefault("search.split.enabled", false)
	v.SetDefault("search.split.from_year", 2010)
	v.SetDefault("search.split.to_year", time.Now().Year())
	v.SetDefault("search.split.ceiling", 50)
	v.SetDefault("search.split.page_size", 20)

	v.SetDefault("db.table", "listing_records")
	v.SetDefault("db.ensure_schema", true)

	v.SetDefault("export.prefix", "runs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.URLs) == "" || strings.TrimSpace(c.Paths.Records) == "" {
		return fmt.Errorf("paths.urls and paths.records are required")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Discovery.MaxPages <= 0 {
		return fmt.Errorf("discovery.max_pages must be > 0")
	}
	if c.Discovery.MaxLinks <= 0 {
		return fmt.Errorf("discovery.max_links must be > 0")
	}
	switch c.Discovery.Pagination {
	case "click", "url":
	default:
		return fmt.Errorf("discovery.pagination must be click or url, got %q", c.Discovery.Pagination)
	}
	if c.Extraction.MaxLinks < 0 {
		return fmt.Errorf("extraction.max_links must be >= 0")
	}
	if c.Pacing.PageMax < c.Pacing.PageMin || c.Pacing.ItemMax < c.Pacing.ItemMin {
		return fmt.Errorf("pacing maxima must not be below their minima")
	}
	if c.Search.Split.Enabled {
		if c.Search.Base == "" {
			return fmt.Errorf("search.base is required when search.split.enabled is set")
		}
		if c.Search.Split.FromYear > c.Search.Split.ToYear {
			return fmt.Errorf("search.split.from_year must be <= search.split.to_year")
		}
		if c.Search.Split.Ceiling <= 0 {
			return fmt.Errorf("search.split.ceiling must be > 0")
		}
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
