package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	envRedisURL = "FETCHDL_REDIS_URL"
	envListen   = "FETCHDL_LISTEN"

	defaultListen         = ":8080"
	defaultRedisURL       = "redis://localhost:6379/0"
	defaultMaxConcurrent  = 2
	defaultChunkSize      = 32 * 1024
	defaultDownloadDir    = "downloads"
	defaultScrapeInterval = 0
	defaultFetchTimeout   = 10 * time.Second
)

var defaultExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac"}

type DownloadConfig struct {
	Dir           string `yaml:"dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	ChunkSize     int    `yaml:"chunk_size"`
}

type ScrapeConfig struct {
	Markdown        bool     `yaml:"markdown"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	Extensions      []string `yaml:"extensions"`
}

type Config struct {
	URL      string         `yaml:"url"`
	Listen   string         `yaml:"listen"`
	RedisURL string         `yaml:"redis_url"`
	LogLevel string         `yaml:"log_level"`
	Download DownloadConfig `yaml:"download"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
}

func (c *Config) SetDefaults() {
	c.Listen = defaultListen
	c.RedisURL = defaultRedisURL
	c.LogLevel = LogLevelInfo
	c.Download.Dir = defaultDownloadDir
	c.Download.MaxConcurrent = defaultMaxConcurrent
	c.Download.ChunkSize = defaultChunkSize
	c.Scrape.IntervalSeconds = defaultScrapeInterval
	c.Scrape.Extensions = append([]string(nil), defaultExtensions...)
}

func (c *Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scrape.IntervalSeconds) * time.Second
}

// FetchTimeout bounds the page fetch during discovery. Transfers themselves
// carry no timeout.
func (c *Config) FetchTimeout() time.Duration {
	return defaultFetchTimeout
}

func Load(path string) (*Config, error) {
	var cfg Config
	cfg.SetDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %s: %w", path, err)
	}

	// .env values override the file, environment overrides both.
	_ = godotenv.Load()

	if v := os.Getenv(envRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(envListen); v != "" {
		cfg.Listen = v
	}

	if cfg.Download.MaxConcurrent < 1 {
		return nil, fmt.Errorf("download.max_concurrent must be positive")
	}
	if cfg.Download.ChunkSize < 1 {
		return nil, fmt.Errorf("download.chunk_size must be positive")
	}

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}
