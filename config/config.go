// Package config loads service configuration from a YAML file with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Sources    []SourceConfig   `yaml:"sources"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Autoupdate AutoupdateConfig `yaml:"autoupdate"`
	LogLevel   string           `yaml:"log_level"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationFolder string        `yaml:"migration_folder"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
}

type SourceConfig struct {
	ID       int           `yaml:"id"`
	Name     string        `yaml:"name"`
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SchedulerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	LockTTL            time.Duration `yaml:"lock_ttl"`
	MaxConcurrentJobs  int64         `yaml:"max_concurrent_jobs"`
	MinCatalogInterval time.Duration `yaml:"min_catalog_interval"`
	MaxCatalogInterval time.Duration `yaml:"max_catalog_interval"`
	JobMarkerTTL       time.Duration `yaml:"job_marker_ttl"`
}

type AutoupdateConfig struct {
	EpisodeBatchSize int `yaml:"episode_batch_size"`
}

// Load reads the config file at path, expanding ${VAR} references from the
// environment (an optional .env file is loaded first).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fern"
	}
	if c.App.Port == 0 {
		c.App.Port = 3004
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 15 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 10 * time.Minute
	}
	if c.Database.MigrationFolder == "" {
		c.Database.MigrationFolder = "db/pg"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "content-events"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 100 * time.Millisecond
	}
	if c.Kafka.RequiredAcks == 0 {
		c.Kafka.RequiredAcks = 1
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "snappy"
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.PageSize == 0 {
			src.PageSize = 50
		}
		if src.Timeout == 0 {
			src.Timeout = 30 * time.Second
		}
		if src.Retry.MaxAttempts == 0 {
			src.Retry.MaxAttempts = 3
		}
		if src.Retry.InitialBackoff == 0 {
			src.Retry.InitialBackoff = time.Second
		}
		if src.Retry.MaxBackoff == 0 {
			src.Retry.MaxBackoff = 30 * time.Second
		}
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = time.Minute
	}
	if c.Scheduler.LockTTL == 0 {
		c.Scheduler.LockTTL = 2 * time.Minute
	}
	if c.Scheduler.MaxConcurrentJobs == 0 {
		c.Scheduler.MaxConcurrentJobs = 5
	}
	if c.Scheduler.MinCatalogInterval == 0 {
		c.Scheduler.MinCatalogInterval = 6 * time.Hour
	}
	if c.Scheduler.MaxCatalogInterval == 0 {
		c.Scheduler.MaxCatalogInterval = 24 * time.Hour
	}
	if c.Scheduler.JobMarkerTTL == 0 {
		c.Scheduler.JobMarkerTTL = time.Hour
	}
	if c.Autoupdate.EpisodeBatchSize == 0 {
		c.Autoupdate.EpisodeBatchSize = 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
