package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	Server      ServerConfig
	Scheduler   SchedulerConfig
	S3          S3Config
	FeedTimeout time.Duration
	DBPath      string
	LogLevel    string
	PrimaryFeed string
	Feeds       map[string]*FeedConfig
}

type ServerConfig struct {
	Port int
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Configured reports whether enough of the S3 settings are present to build
// a real uploader. When false the media worker runs with a no-op uploader.
func (s S3Config) Configured() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

// FeedConfig describes one vendor feed, loaded from config/feeds/*.yaml.
// Cron, when set, overrides the global import schedule for this feed.
type FeedConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8080),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("IMPORT_CRON"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		FeedTimeout: time.Duration(getEnvInt("FEED_TIMEOUT_SECONDS", 10)) * time.Second,
		DBPath:      getEnv("DB_PATH", "propsync.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PrimaryFeed: getEnv("PRIMARY_FEED", "primary"),
		Feeds:       make(map[string]*FeedConfig),
	}

	if minutes := getEnvInt("IMPORT_INTERVAL_MINUTES", 0); minutes > 0 {
		cfg.Scheduler.Interval = time.Duration(minutes) * time.Minute
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.loadFeedConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Primary returns the feed the HTTP import endpoint targets, or nil when no
// feed by that name is configured.
func (c *Config) Primary() *FeedConfig {
	return c.Feeds[c.PrimaryFeed]
}

func (c *Config) loadFeedConfigs() error {
	configDir := "config/feeds"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var feed FeedConfig
		if err := yaml.Unmarshal(data, &feed); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if feed.Name == "" {
			return fmt.Errorf("feed config %s is missing a name", path)
		}
		if feed.Enabled && feed.URL == "" {
			return fmt.Errorf("feed config %s is enabled but has no url", path)
		}

		c.Feeds[feed.Name] = &feed
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
