package model

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrInvalidConfig marks configuration errors detected before any I/O.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete lexsearch configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourceConfig locates the structured API and the detail pages.
type SourceConfig struct {
	APIBaseURL  string `yaml:"api_base_url" mapstructure:"api_base_url"`
	PageBaseURL string `yaml:"page_base_url" mapstructure:"page_base_url"`
	// APIKey is the OC parameter of the open API.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// HTTPConfig applies to every plain HTTP fetch.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy         string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// RenderConfig controls the headless-render tier.
type RenderConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	ChromePath      string        `yaml:"chrome_path" mapstructure:"chrome_path"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" mapstructure:"page_load_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	ContentTimeout  time.Duration `yaml:"content_timeout" mapstructure:"content_timeout"`
}

// IngestConfig shapes one ingestion run.
type IngestConfig struct {
	PageSize    int  `yaml:"page_size" mapstructure:"page_size"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	MaxPages    int  `yaml:"max_pages" mapstructure:"max_pages"` // 0 = all pages
	Vectorize   bool `yaml:"vectorize" mapstructure:"vectorize"`
	// Attempts > 1 retries a whole FetchDocument call with backoff.
	Attempts     int           `yaml:"attempts" mapstructure:"attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"`
	Model         string        `yaml:"model" mapstructure:"model"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	Dimension     int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxInputRunes int           `yaml:"max_input_runes" mapstructure:"max_input_runes"`
}

// IndexConfig locates and tunes the vector indexes.
type IndexConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Type   string `yaml:"type" mapstructure:"type"`
	NList  int    `yaml:"nlist" mapstructure:"nlist"`
	NProbe int    `yaml:"nprobe" mapstructure:"nprobe"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// SearchConfig holds similarity search defaults.
type SearchConfig struct {
	TopK          int           `yaml:"top_k" mapstructure:"top_k"`
	Threshold     float32       `yaml:"threshold" mapstructure:"threshold"`
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl" mapstructure:"query_cache_ttl"`
}

// CacheConfig controls the HTTP response cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			APIBaseURL:  "https://www.law.go.kr/DRF",
			PageBaseURL: "https://www.law.go.kr",
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "lexsearch/0.1 (+https://github.com/ppiankov/lexsearch)",
			MaxBodyBytes:      10 << 20,
			RequestsPerSecond: 2,
			Burst:             5,
			RespectRobots:     true,
		},
		Render: RenderConfig{
			Enabled:         true,
			Workers:         2,
			PageLoadTimeout: 30 * time.Second,
			SettleDelay:     5 * time.Second,
			ContentTimeout:  10 * time.Second,
		},
		Ingest: IngestConfig{
			PageSize:     100,
			Concurrency:  5,
			Vectorize:    true,
			Attempts:     1,
			RetryBackoff: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:      "openai",
			Model:         "text-embedding-3-small",
			Dimension:     1536,
			BatchSize:     32,
			Timeout:       60 * time.Second,
			MaxInputRunes: 4000,
		},
		Index: IndexConfig{
			Type:   "flat",
			NList:  100,
			NProbe: 8,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Search: SearchConfig{
			TopK:          10,
			Threshold:     0.3,
			QueryCacheTTL: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration before any component is built.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"source.api_base_url":  c.Source.APIBaseURL,
		"source.page_base_url": c.Source.PageBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, name, raw)
		}
	}

	switch {
	case c.Ingest.PageSize <= 0:
		return fmt.Errorf("%w: ingest.page_size must be positive, got %d", ErrInvalidConfig, c.Ingest.PageSize)
	case c.Ingest.Concurrency < 0:
		return fmt.Errorf("%w: ingest.concurrency must not be negative, got %d", ErrInvalidConfig, c.Ingest.Concurrency)
	case c.Ingest.MaxPages < 0:
		return fmt.Errorf("%w: ingest.max_pages must not be negative, got %d", ErrInvalidConfig, c.Ingest.MaxPages)
	case c.Ingest.Attempts < 0:
		return fmt.Errorf("%w: ingest.attempts must not be negative, got %d", ErrInvalidConfig, c.Ingest.Attempts)
	case c.Embedding.Dimension <= 0:
		return fmt.Errorf("%w: embedding.dimension must be positive, got %d", ErrInvalidConfig, c.Embedding.Dimension)
	case c.Render.Workers < 0:
		return fmt.Errorf("%w: render.workers must not be negative, got %d", ErrInvalidConfig, c.Render.Workers)
	case c.Search.Threshold < -1 || c.Search.Threshold > 1:
		return fmt.Errorf("%w: search.threshold must be within [-1, 1], got %v", ErrInvalidConfig, c.Search.Threshold)
	}

	switch c.Index.Type {
	case "flat", "ivf":
	default:
		return fmt.Errorf("%w: index.type must be flat or ivf, got %q", ErrInvalidConfig, c.Index.Type)
	}

	switch c.Store.Driver {
	case "sqlite":
	case "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the mysql driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store.driver must be sqlite or mysql, got %q", ErrInvalidConfig, c.Store.Driver)
	}

	return nil
}
