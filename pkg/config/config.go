package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort           string        `mapstructure:"SERVER_PORT"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	CacheDBPath          string        `mapstructure:"CACHE_DB_PATH"`
	CacheTTLMinutes      int           `mapstructure:"CACHE_TTL_MINUTES"`
	RedisAddr            string        `mapstructure:"REDIS_ADDR"`
	ProgressGraceSeconds int           `mapstructure:"PROGRESS_GRACE_SECONDS"`
	MaxConcurrentScrapes int           `mapstructure:"MAX_CONCURRENT_SCRAPES"`
	AmazonDomain         string        `mapstructure:"AMAZON_DOMAIN"`
	DarazDomain          string        `mapstructure:"DARAZ_DOMAIN"`
	AmazonMinDelay       time.Duration `mapstructure:"AMAZON_MIN_DELAY"`
	AmazonMaxDelay       time.Duration `mapstructure:"AMAZON_MAX_DELAY"`
	DarazMinDelay        time.Duration `mapstructure:"DARAZ_MIN_DELAY"`
	DarazMaxDelay        time.Duration `mapstructure:"DARAZ_MAX_DELAY"`
	AmazonTimeout        time.Duration `mapstructure:"AMAZON_TIMEOUT"`
	DarazTimeout         time.Duration `mapstructure:"DARAZ_TIMEOUT"`
	AmazonHeadless       bool          `mapstructure:"AMAZON_HEADLESS"`
	UpstreamPerMinute    int           `mapstructure:"UPSTREAM_REQUESTS_PER_MINUTE"`
	PKRToUSDRate         float64       `mapstructure:"PKR_TO_USD_RATE"`
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c *Config) ProgressGrace() time.Duration {
	return time.Duration(c.ProgressGraceSeconds) * time.Second
}

// Load reads configuration from the env file at path (".env" when empty) and
// the environment. A missing file is not an error; environment variables
// override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("SERVER_PORT", "9090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_DB_PATH", "./cache.db")
	v.SetDefault("CACHE_TTL_MINUTES", 1440)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("PROGRESS_GRACE_SECONDS", 300)
	v.SetDefault("MAX_CONCURRENT_SCRAPES", 3)
	v.SetDefault("AMAZON_DOMAIN", "https://www.amazon.com")
	v.SetDefault("DARAZ_DOMAIN", "https://www.daraz.pk")
	v.SetDefault("AMAZON_MIN_DELAY", "3s")
	v.SetDefault("AMAZON_MAX_DELAY", "5s")
	v.SetDefault("DARAZ_MIN_DELAY", "1500ms")
	v.SetDefault("DARAZ_MAX_DELAY", "3s")
	v.SetDefault("AMAZON_TIMEOUT", "15s")
	v.SetDefault("DARAZ_TIMEOUT", "30s")
	v.SetDefault("AMAZON_HEADLESS", false)
	v.SetDefault("UPSTREAM_REQUESTS_PER_MINUTE", 0)
	v.SetDefault("PKR_TO_USD_RATE", 280.0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.CacheTTLMinutes <= 0 {
		return fmt.Errorf("config: CACHE_TTL_MINUTES must be positive, got %d", c.CacheTTLMinutes)
	}
	if c.MaxConcurrentScrapes <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_SCRAPES must be positive, got %d", c.MaxConcurrentScrapes)
	}
	if c.PKRToUSDRate <= 0 {
		return fmt.Errorf("config: PKR_TO_USD_RATE must be positive, got %v", c.PKRToUSDRate)
	}
	if c.AmazonTimeout <= 0 || c.DarazTimeout <= 0 {
		return fmt.Errorf("config: request timeouts must be positive")
	}
	return nil
}
