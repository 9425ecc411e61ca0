package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Engine    EngineConfig    `yaml:"engine"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type EngineConfig struct {
	// RiskFreeRate is the annualized risk-free rate used for the Sharpe
	// ratio, as a fraction (0.02 = 2%).
	RiskFreeRate float64 `yaml:"risk_free_rate"`
	// DrawdownConfidence scales portfolio volatility into the estimated
	// maximum drawdown. 2.33 corresponds to a one-sided 99% quantile.
	DrawdownConfidence float64 `yaml:"drawdown_confidence"`
	// MaxWeight is the default per-asset weight cap as a fraction of the
	// portfolio. 1.0 means uncapped; a request preference overrides it.
	MaxWeight float64 `yaml:"max_weight"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		App: AppConfig{
			Name:     "allocengine",
			Env:      "development",
			Port:     8080,
			LogLevel: "info",
		},
		Engine: EngineConfig{
			RiskFreeRate:       0.0,
			DrawdownConfidence: 2.33,
			MaxWeight:          1.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
	}
	return cfg
}

// Load reads a YAML config file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if env := os.Getenv("APP_ENV"); env != "" {
		c.App.Env = env
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.App.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.App.LogLevel = level
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}

	if rate := os.Getenv("RISK_FREE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			c.Engine.RiskFreeRate = r
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Engine.DrawdownConfidence == 0 {
		c.Engine.DrawdownConfidence = 2.33
	}
	if c.Engine.MaxWeight == 0 {
		c.Engine.MaxWeight = 1.0
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
}

func (c *Config) validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.App.Port)
	}

	if c.Engine.RiskFreeRate < 0 {
		return fmt.Errorf("risk-free rate must not be negative: %f", c.Engine.RiskFreeRate)
	}

	if c.Engine.DrawdownConfidence <= 0 {
		return fmt.Errorf("drawdown confidence must be positive: %f", c.Engine.DrawdownConfidence)
	}

	if c.Engine.MaxWeight <= 0 || c.Engine.MaxWeight > 1 {
		return fmt.Errorf("max weight must be in (0, 1]: %f", c.Engine.MaxWeight)
	}

	return nil
}
