package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"torrentstream/catalog/internal/logger"
	"torrentstream/catalog/internal/search"
)

// Search backends selectable with search.backend.
const (
	BackendRelational = "relational"
	BackendPrepared   = "prepared"
	BackendElastic    = "elastic"
	BackendMongo      = "mongo"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   logger.Config   `mapstructure:"logging"`
	Search    SearchConfig    `mapstructure:"search"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SearchConfig struct {
	Backend string `mapstructure:"backend"`
	// DocumentTermsOnly sends only term searches to a document backend and
	// serves plain browsing from the relational store.
	DocumentTermsOnly  bool          `mapstructure:"document_terms_only"`
	ResultsPerPage     int           `mapstructure:"results_per_page"`
	MaxPerPage         int           `mapstructure:"max_per_page"`
	MaxSearchResults   int           `mapstructure:"max_search_results"`
	MaxPages           int64         `mapstructure:"max_pages"` // 0 = unlimited
	CountCacheDuration time.Duration `mapstructure:"count_cache_duration"`
	CountCacheSize     int           `mapstructure:"count_cache_size"`
	Highlight          bool          `mapstructure:"highlight"`
	BackendTimeout     time.Duration `mapstructure:"backend_timeout"`
}

// Planner returns the planner settings. The result window only applies to
// document backends.
func (c SearchConfig) Planner() search.PlannerConfig {
	cfg := search.PlannerConfig{
		ResultsPerPage: c.ResultsPerPage,
		MaxPerPage:     c.MaxPerPage,
		MaxPages:       c.MaxPages,
		Highlight:      c.Highlight,
	}
	if c.IsDocumentBackend() {
		cfg.MaxResults = c.MaxSearchResults
	}
	return cfg
}

func (c SearchConfig) IsDocumentBackend() bool {
	return c.Backend == BackendElastic || c.Backend == BackendMongo
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
	// PreparedShapes caps the statements kept by the prepared backend.
	PreparedShapes int `mapstructure:"prepared_shapes"`
}

type ElasticConfig struct {
	URLs  []string `mapstructure:"urls"`
	Index string   `mapstructure:"index"`
	Sniff bool     `mapstructure:"sniff"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"` // empty disables the shared count tier
}

type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // empty falls back to OTEL_EXPORTER_OTLP_ENDPOINT
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type FeedConfig struct {
	Title    string   `mapstructure:"title"`
	BaseURL  string   `mapstructure:"base_url"`
	Trackers []string `mapstructure:"trackers"`
}

// LoadConfig reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Search.Backend = strings.ToLower(strings.TrimSpace(cfg.Search.Backend))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)

	v.SetDefault("search.backend", BackendRelational)
	v.SetDefault("search.document_terms_only", false)
	v.SetDefault("search.results_per_page", 75)
	v.SetDefault("search.max_per_page", 150)
	v.SetDefault("search.max_search_results", 1000)
	v.SetDefault("search.max_pages", 0)
	v.SetDefault("search.count_cache_duration", 0)
	v.SetDefault("search.count_cache_size", 256)
	v.SetDefault("search.highlight", false)
	v.SetDefault("search.backend_timeout", 5*time.Second)

	v.SetDefault("sqlite.path", "./data/catalog.db")
	v.SetDefault("sqlite.prepared_shapes", 64)

	v.SetDefault("elastic.urls", []string{"http://localhost:9200"})
	v.SetDefault("elastic.index", "torrents")
	v.SetDefault("elastic.sniff", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "catalog")
	v.SetDefault("mongo.collection", "torrents")

	v.SetDefault("redis.url", "")

	v.SetDefault("telemetry.service_name", "torrent-catalog")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("feed.title", "Torrent catalog")
	v.SetDefault("feed.base_url", "http://localhost:8080")
	v.SetDefault("feed.trackers", []string{})
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Search.Backend {
	case BackendRelational, BackendPrepared, BackendElastic, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("search.backend: unknown backend %q", c.Search.Backend))
	}
	if c.Search.DocumentTermsOnly && !c.Search.IsDocumentBackend() {
		errs = append(errs, errors.New("search.document_terms_only requires a document backend"))
	}
	if c.Search.ResultsPerPage <= 0 {
		errs = append(errs, errors.New("search.results_per_page must be positive"))
	}
	if c.Search.MaxPerPage < c.Search.ResultsPerPage {
		errs = append(errs, errors.New("search.max_per_page must be at least search.results_per_page"))
	}
	if c.Search.MaxSearchResults < 0 {
		errs = append(errs, errors.New("search.max_search_results must not be negative"))
	}
	if c.Search.MaxPages < 0 {
		errs = append(errs, errors.New("search.max_pages must not be negative"))
	}
	if c.Search.CountCacheDuration < 0 {
		errs = append(errs, errors.New("search.count_cache_duration must not be negative"))
	}
	if c.SQLite.Path == "" {
		errs = append(errs, errors.New("sqlite.path is required"))
	}
	if c.Search.Backend == BackendElastic && len(c.Elastic.URLs) == 0 {
		errs = append(errs, errors.New("elastic.urls is required for the elastic backend"))
	}
	if c.Search.Backend == BackendMongo && c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required for the mongo backend"))
	}
	return errors.Join(errs...)
}
