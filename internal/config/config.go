package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Backend         BackendConfig   `yaml:"backend"`
	Polling         PollingConfig   `yaml:"polling"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	Dashboard       DashboardConfig `yaml:"dashboard"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" env:"HOMEPANEL_SHUTDOWN_TIMEOUT"` // General shutdown timeout for graceful stops
}

// BackendConfig contains home-automation backend connection settings
type BackendConfig struct {
	URL          string   `yaml:"url" env:"HOMEPANEL_BACKEND_URL"`
	Timeout      Duration `yaml:"timeout" env:"HOMEPANEL_BACKEND_TIMEOUT"` // HTTP timeout per request
	RateLimitRPS float64  `yaml:"rate_limit_rps"`                          // 0 = unlimited
}

// PollingConfig contains resource polling settings
type PollingConfig struct {
	Interval        Duration `yaml:"interval" env:"HOMEPANEL_POLL_INTERVAL"`
	HistoryInterval Duration `yaml:"history_interval"`
	Resources       []string `yaml:"resources"` // Empty = all resources
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" env:"HOMEPANEL_DB_PATH"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level" env:"HOMEPANEL_LOG_LEVEL"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// LedgerConfig contains local action ledger settings
type LedgerConfig struct {
	CleanupSchedule string `yaml:"cleanup_schedule"` // cron expression
	RetentionDays   int    `yaml:"retention_days"`
}

// Retention returns the retention window as a duration
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DashboardConfig contains dashboard HTTP server settings
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" env:"HOMEPANEL_DASHBOARD_PORT"`
}

// Addr returns host:port for the listener
func (c *DashboardConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MQTTConfig contains MQTT publisher settings
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker" env:"HOMEPANEL_MQTT_BROKER"`
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username" env:"HOMEPANEL_MQTT_USERNAME"`
	Password    string   `yaml:"password" env:"HOMEPANEL_MQTT_PASSWORD"`
	TopicPrefix string   `yaml:"topic_prefix"`
	QoS         byte     `yaml:"qos"`
	Timeout     Duration `yaml:"timeout"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML and env unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler so env overlays accept "5s"
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
// A missing file is not an error: the environment and defaults still apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	// Backend defaults
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8080"
	}
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(10 * time.Second)
	}

	// Polling defaults
	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = Duration(5 * time.Second)
	}
	if cfg.Polling.HistoryInterval == 0 {
		cfg.Polling.HistoryInterval = Duration(3 * time.Second)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./homepanel.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupSchedule == "" {
		cfg.Ledger.CleanupSchedule = "@daily"
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Dashboard defaults
	if cfg.Dashboard.Port == 0 {
		cfg.Dashboard.Port = 8090
	}
	if cfg.Dashboard.Host == "" {
		cfg.Dashboard.Host = "0.0.0.0"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "homepanel"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "homepanel"
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = Duration(5 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that have no sensible default
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid backend url %q: %w", c.Backend.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend url %q: scheme must be http or https", c.Backend.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend url %q: missing host", c.Backend.URL)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt is enabled but mqtt.broker is empty")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", c.MQTT.QoS)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
