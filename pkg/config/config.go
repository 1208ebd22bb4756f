// Package config loads the catalog server configuration from defaults, an
// optional YAML file, an optional .env file and the environment, in that
// order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all configuration for the catalog server.
type Config struct {
	Env        string        `yaml:"env"`
	Serverless bool          `yaml:"serverless"`
	Server     ServerConfig  `yaml:"server"`
	Shopify    ShopifyConfig `yaml:"shopify"`
	Cache      CacheConfig   `yaml:"cache"`
	Redis      RedisConfig   `yaml:"redis"`
	Catalog    CatalogConfig `yaml:"catalog"`
	Log        LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// InvalidateToken guards POST /api/cache/invalidate; empty disables it
	InvalidateToken string `yaml:"invalidate_token"`
}

// ShopifyConfig holds upstream settings.
type ShopifyConfig struct {
	StoreDomain          string        `yaml:"store_domain"`
	AdminDomain          string        `yaml:"admin_domain"`
	StorefrontToken      string        `yaml:"storefront_token"`
	AdminToken           string        `yaml:"admin_token"`
	StorefrontAPIVersion string        `yaml:"storefront_api_version"`
	AdminAPIVersion      string        `yaml:"admin_api_version"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxBytes             int64         `yaml:"max_bytes"`
	MaxRedirects         int           `yaml:"max_redirects"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
}

// CacheConfig holds cache tier settings.
type CacheConfig struct {
	MemoryEntries int           `yaml:"memory_entries"`
	MemoryTTL     time.Duration `yaml:"memory_ttl"`
	KVTTL         time.Duration `yaml:"kv_ttl"`
	KVTimeout     time.Duration `yaml:"kv_timeout"`
	DiskTTL       time.Duration `yaml:"disk_ttl"`
	Dir           string        `yaml:"dir"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
	NegativeTTL   time.Duration `yaml:"negative_ttl"`
}

// RedisConfig holds the KV tier connection. URL wins over Addr.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CatalogConfig holds catalog query settings.
type CatalogConfig struct {
	PageSize         int `yaml:"page_size"`
	MaxPages         int `yaml:"max_pages"`
	HomepageCount    int `yaml:"homepage_count"`
	HandleChunkSize  int `yaml:"handle_chunk_size"`
	AdminBatchSize   int `yaml:"admin_batch_size"`
	AdminConcurrency int `yaml:"admin_concurrency"`

	// Optional attributes whose absence also triggers an Admin lookup
	RequireDrivetrain bool `yaml:"require_drivetrain"`
	RequireCategory   bool `yaml:"require_category"`
	RequireBodyType   bool `yaml:"require_body_type"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Env: EnvProduction,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Shopify: ShopifyConfig{
			StorefrontAPIVersion: "2024-10",
			AdminAPIVersion:      "2024-10",
			Timeout:              10 * time.Second,
			MaxBytes:             8 << 20,
			MaxRedirects:         3,
			RetryAttempts:        3,
			RetryDelay:           500 * time.Millisecond,
		},
		Cache: CacheConfig{
			MemoryEntries: 512,
			MemoryTTL:     5 * time.Minute,
			KVTTL:         30 * time.Minute,
			KVTimeout:     2 * time.Second,
			DiskTTL:       24 * time.Hour,
			Dir:           ".cache/catalog",
			LoadTimeout:   60 * time.Second,
			NegativeTTL:   60 * time.Second,
		},
		Catalog: CatalogConfig{
			PageSize:         50,
			MaxPages:         40,
			HomepageCount:    8,
			HandleChunkSize:  25,
			AdminBatchSize:   50,
			AdminConcurrency: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file (optional), loads envFiles
// (default ".env", missing files are skipped) and applies environment
// overrides. Variables already set in the environment win over .env.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid env: %q", c.Env)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Shopify.StoreDomain == "" {
		return fmt.Errorf("shopify store domain is required (SHOPIFY_STORE_DOMAIN)")
	}
	if c.Shopify.StorefrontToken == "" {
		return fmt.Errorf("shopify storefront token is required (SHOPIFY_STOREFRONT_ACCESS_TOKEN)")
	}
	if c.Cache.MemoryEntries < 1 {
		return fmt.Errorf("cache memory_entries must be positive")
	}
	if c.Cache.NegativeTTL < 0 {
		return fmt.Errorf("cache negative_ttl must not be negative")
	}
	if c.Catalog.MaxPages < 1 {
		return fmt.Errorf("catalog max_pages must be positive")
	}
	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > 250 {
		return fmt.Errorf("catalog page_size must be between 1 and 250")
	}
	if c.Catalog.HandleChunkSize < 1 || c.Catalog.AdminBatchSize < 1 {
		return fmt.Errorf("catalog chunk and batch sizes must be positive")
	}
	if c.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// KVEnabled reports whether the distributed KV tier is used. It is off in
// development and when no Redis is configured.
func (c *Config) KVEnabled() bool {
	return !c.IsDevelopment() && (c.Redis.URL != "" || c.Redis.Addr != "")
}

// DiskEnabled reports whether the local disk tier is used. Serverless
// filesystems are read-only or ephemeral, so it is off there.
func (c *Config) DiskEnabled() bool {
	return !c.Serverless && c.Cache.Dir != ""
}

// RedisOptions returns go-redis options for the KV tier.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL != "" {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if c.Redis.Password != "" {
			opts.Password = c.Redis.Password
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}, nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// serverlessMarkers are set by hosting platforms that run us as a function.
var serverlessMarkers = []string{"VERCEL", "AWS_LAMBDA_FUNCTION_NAME", "NETLIFY"}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	setString("APP_ENV", &cfg.Env)
	setString("SHOPIFY_STORE_DOMAIN", &cfg.Shopify.StoreDomain)
	setString("SHOPIFY_ADMIN_DOMAIN", &cfg.Shopify.AdminDomain)
	setString("SHOPIFY_STOREFRONT_ACCESS_TOKEN", &cfg.Shopify.StorefrontToken)
	setString("SHOPIFY_ADMIN_ACCESS_TOKEN", &cfg.Shopify.AdminToken)
	setString("SHOPIFY_STOREFRONT_API_VERSION", &cfg.Shopify.StorefrontAPIVersion)
	setString("SHOPIFY_ADMIN_API_VERSION", &cfg.Shopify.AdminAPIVersion)
	setString("REDIS_URL", &cfg.Redis.URL)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setString("CACHE_DIR", &cfg.Cache.Dir)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("CATALOG_INVALIDATE_TOKEN", &cfg.Server.InvalidateToken)
	cfg.Env = strings.ToLower(cfg.Env)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	for name, dst := range map[string]*bool{"SERVERLESS": &cfg.Serverless, "LOG_PRETTY": &cfg.Log.Pretty} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			*dst = b
		}
	}

	if os.Getenv("SERVERLESS") == "" {
		for _, marker := range serverlessMarkers {
			if os.Getenv(marker) != "" {
				cfg.Serverless = true
				break
			}
		}
	}
	return nil
}
