package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the resolution service
type Config struct {
	Catalogs      CatalogsConfig      `mapstructure:"catalogs"`
	Matcher       MatcherConfig       `mapstructure:"matcher"`
	DiskCache     DiskCacheConfig     `mapstructure:"disk_cache"`
	Promotions    PromotionsConfig    `mapstructure:"promotions"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// CatalogsConfig holds specialized catalog fetch configuration
type CatalogsConfig struct {
	BaseURL            string          `mapstructure:"base_url"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	PageSize           int             `mapstructure:"page_size"`
	MaxPages           int             `mapstructure:"max_pages"`
	FetchConcurrency   int             `mapstructure:"fetch_concurrency"`
	StalenessWindow    time.Duration   `mapstructure:"staleness_window"`
	ResponseTTL        time.Duration   `mapstructure:"response_ttl"`
	AlcoholCategories  []string        `mapstructure:"alcohol_categories"`
	CaffeineCategories []string        `mapstructure:"caffeine_categories"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// MatcherConfig holds fuzzy matcher tuning
type MatcherConfig struct {
	// Threshold is the minimum acceptance score. Calibrated
	// conservatively: a false negative logs under the generic food
	// catalog, a false positive mis-routes the user's data.
	Threshold float64 `mapstructure:"threshold"`

	// BrandBonus is added when both brands are present and
	// normalize-equal.
	BrandBonus float64 `mapstructure:"brand_bonus"`
}

// DiskCacheConfig holds keyed disk cache settings
type DiskCacheConfig struct {
	Dir                 string        `mapstructure:"dir"`
	TTL                 time.Duration `mapstructure:"ttl"`
	MaxConcurrentWrites int           `mapstructure:"max_concurrent_writes"`
}

// PromotionsConfig holds promotion fetch configuration
type PromotionsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"` // empty disables SNS publishing
}

// CacheConfig holds layered caching configuration
type CacheConfig struct {
	L1MaxSize int           `mapstructure:"l1_max_size"`
	L2TTL     time.Duration `mapstructure:"l2_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Sampler  string `mapstructure:"sampler"` // always, never, ratio
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalogs.base_url", "https://api.evolvehealth.app")
	v.SetDefault("catalogs.rate_limit.requests_per_minute", 300)
	v.SetDefault("catalogs.rate_limit.burst", 20)
	v.SetDefault("catalogs.page_size", 50)
	v.SetDefault("catalogs.max_pages", 2)
	v.SetDefault("catalogs.fetch_concurrency", 4)
	v.SetDefault("catalogs.staleness_window", "10m")
	v.SetDefault("catalogs.response_ttl", "5m")
	v.SetDefault("catalogs.alcohol_categories", []string{
		"beer", "wine", "spirits", "cocktails", "seltzer",
	})
	v.SetDefault("catalogs.caffeine_categories", []string{
		"coffee", "energy_drink", "tea", "soda",
	})

	// Matcher defaults
	v.SetDefault("matcher.threshold", 0.5)
	v.SetDefault("matcher.brand_bonus", 0.2)

	// Disk cache defaults
	v.SetDefault("disk_cache.dir", "./data/cache")
	v.SetDefault("disk_cache.ttl", "15m")
	v.SetDefault("disk_cache.max_concurrent_writes", 8)

	// Promotion defaults
	v.SetDefault("promotions.base_url", "https://api.evolvehealth.app")
	v.SetDefault("promotions.timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "")

	// Cache defaults
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l2_ttl", "5m")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sampler", "always")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Catalog validation
	if c.Catalogs.BaseURL == "" {
		return fmt.Errorf("catalogs base URL is required")
	}
	if c.Catalogs.PageSize <= 0 {
		return fmt.Errorf("catalogs page size must be > 0")
	}
	if c.Catalogs.MaxPages <= 0 {
		return fmt.Errorf("catalogs max pages must be > 0")
	}
	if c.Catalogs.StalenessWindow <= 0 {
		return fmt.Errorf("catalogs staleness window must be > 0")
	}
	if len(c.Catalogs.AlcoholCategories) == 0 && len(c.Catalogs.CaffeineCategories) == 0 {
		return fmt.Errorf("at least one catalog category is required")
	}

	// Matcher validation
	if c.Matcher.Threshold <= 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher threshold must be in (0, 1], got %v", c.Matcher.Threshold)
	}
	if c.Matcher.BrandBonus < 0 {
		return fmt.Errorf("matcher brand bonus must be >= 0")
	}

	// Disk cache validation
	if c.DiskCache.Dir == "" {
		return fmt.Errorf("disk cache directory is required")
	}
	if c.DiskCache.TTL <= 0 {
		return fmt.Errorf("disk cache TTL must be > 0")
	}

	// Redis validation
	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	// AWS validation (topic ARN may be empty: publishing is disabled)
	if c.AWS.SNSTopicARN != "" && c.AWS.Region == "" {
		return fmt.Errorf("AWS region is required when SNS topic ARN is set")
	}

	// Observability validation
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
