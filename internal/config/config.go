// Package config loads paperpulse configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Citation providers.
const (
	ProviderSemanticScholar = "semantic_scholar"
	ProviderOpenAlex        = "openalex"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sources   SourcesConfig   `yaml:"sources"`
	Citations CitationsConfig `yaml:"citations"`
	Mentions  MentionsConfig  `yaml:"mentions"`
	Cache     CacheConfig     `yaml:"cache"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Filter    FilterConfig    `yaml:"filter"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// ScheduleConfig configures collection and rescoring intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	RescoreInterval string `yaml:"rescore_interval"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	return parseDuration(s.CollectInterval, 6*time.Hour)
}

// ParseRescoreInterval returns the rescore interval as time.Duration.
func (s ScheduleConfig) ParseRescoreInterval() time.Duration {
	return parseDuration(s.RescoreInterval, time.Hour)
}

// SourcesConfig holds configuration for the paper sources.
type SourcesConfig struct {
	ArXiv    ArXivConfig    `yaml:"arxiv"`
	ArXivRSS ArXivRSSConfig `yaml:"arxiv_rss"`
}

// ArXivConfig for the arXiv export API source.
type ArXivConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Categories []string `yaml:"categories"`
	MaxResults int      `yaml:"max_results"`
}

// ArXivRSSConfig for the arXiv daily listing feeds.
type ArXivRSSConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Categories []string `yaml:"categories"`
}

// CitationsConfig selects and configures the citation counter.
type CitationsConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Provider string  `yaml:"provider"` // "semantic_scholar" or "openalex"
	APIKey   string  `yaml:"api_key"`  // Semantic Scholar, optional
	Email    string  `yaml:"email"`    // OpenAlex polite pool, optional
	RPS      float64 `yaml:"rps"`
}

// MentionsConfig configures the GitHub repository-mention counter.
type MentionsConfig struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"`
	RPS     float64 `yaml:"rps"`
}

// CacheConfig configures the count cache.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"` // empty = in-memory
	TTL       string `yaml:"ttl"`
}

// ParseTTL returns the cache TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	return parseDuration(c.TTL, 12*time.Hour)
}

// AlertsConfig configures alert destinations and selection.
type AlertsConfig struct {
	MinScore float64       `yaml:"min_score"`
	TopN     int           `yaml:"top_n"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// FilterConfig narrows collected papers.
type FilterConfig struct {
	Keywords        []string `yaml:"keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
	Categories      []string `yaml:"categories"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "pretty"
	File   string `yaml:"file"`   // optional, rotated
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./paperpulse.db"},
		Schedule: ScheduleConfig{
			CollectInterval: "6h",
			RescoreInterval: "1h",
		},
		Sources: SourcesConfig{
			ArXiv: ArXivConfig{
				Enabled:    true,
				Categories: []string{"cs.AI", "cs.CL", "cs.CV", "cs.LG"},
				MaxResults: 100,
			},
			ArXivRSS: ArXivRSSConfig{
				Enabled:    false,
				Categories: []string{"cs.AI", "cs.CL", "cs.CV", "cs.LG"},
			},
		},
		Citations: CitationsConfig{
			Enabled:  true,
			Provider: ProviderSemanticScholar,
			RPS:      1,
		},
		Mentions: MentionsConfig{
			Enabled: true,
			RPS:     0.15,
		},
		Cache: CacheConfig{TTL: "12h"},
		Alerts: AlertsConfig{
			MinScore: 0.8,
			TopN:     10,
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "pretty"},
	}
}

// Load reads configuration from a YAML file, loads .env when present and
// applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the program cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Citations.Provider {
	case ProviderSemanticScholar, ProviderOpenAlex:
	default:
		return fmt.Errorf("citations.provider %q: want %s or %s",
			c.Citations.Provider, ProviderSemanticScholar, ProviderOpenAlex)
	}
	if c.Alerts.MinScore < 0 || c.Alerts.MinScore > 1 {
		return fmt.Errorf("alerts.min_score %v: must be within [0, 1]", c.Alerts.MinScore)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPERPULSE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("PAPERPULSE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PAPERPULSE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Mentions.Token = v
	}
	if v := os.Getenv("SEMANTIC_SCHOLAR_API_KEY"); v != "" {
		cfg.Citations.APIKey = v
	}
	if v := os.Getenv("OPENALEX_EMAIL"); v != "" {
		cfg.Citations.Email = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
