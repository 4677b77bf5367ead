package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amc-trader/discovery/internal/models"
)

// Config is the process-level configuration loaded at startup.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Provider  ProviderConfig  `yaml:"provider"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Runner    RunnerConfig    `yaml:"runner"`

	// StrategiesFile points at the strategy YAML; empty uses the
	// built-in AlphaStack 4.1 default.
	StrategiesFile string `yaml:"strategies_file"`
}

// HTTPConfig configures the facade server.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig configures the contender cache connection.
type RedisConfig struct {
	Addr string        `yaml:"addr"`
	DB   int           `yaml:"db"`
	TTL  time.Duration `yaml:"ttl"`
}

// PostgresConfig configures the volume-average store. Optional; empty DSN
// disables persistence and the provider falls back to upstream fetches.
type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig configures the upstream market data client.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBase      time.Duration `yaml:"retry_base"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// SchedulerConfig configures cron-driven triggers.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a standard 5-field cron spec evaluated in exchange local
	// time. Default fires every 5 minutes on weekdays.
	Cron string `yaml:"cron"`
	// PruneCron schedules the daily stale volume-average sweep.
	PruneCron string `yaml:"prune_cron"`
}

// RunnerConfig configures the job runner.
type RunnerConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// Load reads config YAML from path, layering defaults under it. Env vars
// POLYGON_API_KEY, REDIS_URL and DATABASE_URL override their file
// counterparts so deploys can keep secrets out of the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", models.ErrInvalidConfig, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config %s: %v", models.ErrInvalidConfig, path, err)
		}
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http port %d out of range", models.ErrInvalidConfig, c.HTTP.Port)
	}
	if c.Redis.TTL <= 0 {
		return fmt.Errorf("%w: redis ttl must be positive", models.ErrInvalidConfig)
	}
	if c.Runner.QueueSize <= 0 {
		return fmt.Errorf("%w: runner queue_size must be positive", models.ErrInvalidConfig)
	}
	if c.Runner.RunTimeout <= 0 {
		return fmt.Errorf("%w: runner run_timeout must be positive", models.ErrInvalidConfig)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("%w: provider max_retries must not be negative", models.ErrInvalidConfig)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  600 * time.Second,
		},
		Postgres: PostgresConfig{
			Timeout: 5 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL:        "https://api.polygon.io",
			RequestTimeout: 10 * time.Second,
			MaxRetries:     3,
			RetryBase:      250 * time.Millisecond,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			Cron:      "*/5 9-16 * * 1-5",
			PruneCron: "15 1 * * *",
		},
		Runner: RunnerConfig{
			QueueSize:  32,
			RunTimeout: 300 * time.Second,
		},
	}
}
