// Package config loads the tool configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/blockedby/outreach/internal/models"
)

// Tracker backends.
const (
	TrackerJSON   = "json"
	TrackerSQLite = "sqlite"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.yaml"

// envPrefix is prepended to every environment override.
const envPrefix = "OUTREACH_"

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")
)

// TrackerConfig selects the delivery history storage.
type TrackerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Templates holds the message templates per message kind.
type Templates struct {
	Outreach    models.Template `yaml:"outreach"`
	Application models.Template `yaml:"application"`
}

// Config holds all application configuration.
type Config struct {
	// smtp
	Server            string        `yaml:"server"`
	Port              int           `yaml:"port"`
	SenderAddress     string        `yaml:"sender_address"`
	SenderDisplayName string        `yaml:"sender_display_name"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	UseSSL            bool          `yaml:"use_ssl"`
	Timeout           time.Duration `yaml:"timeout"`

	// dispatch
	InterSendDelay     time.Duration `yaml:"inter_send_delay"`
	MaxBatchSize       int           `yaml:"max_batch_size"`
	MaxPerMinute       int           `yaml:"max_per_minute"`
	SuppressDuplicates bool          `yaml:"suppress_duplicates"`
	RecencyWindow      time.Duration `yaml:"recency_window"`

	// schedule
	ScheduleEnabled  bool          `yaml:"schedule_enabled"`
	ScheduleInterval time.Duration `yaml:"schedule_interval"`

	// files
	Tracker     TrackerConfig `yaml:"tracker"`
	RecordsFile string        `yaml:"records_file"`
	CVPath      string        `yaml:"cv_path"`

	// nats, empty disables delivery events
	NatsURL string `yaml:"nats_url"`

	// logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Defaults  map[string]string `yaml:"defaults"`
	Templates Templates         `yaml:"templates"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		Server:             "smtp.gmail.com",
		Port:               587,
		SenderAddress:      "you@example.com",
		SenderDisplayName:  "Your Name",
		Timeout:            30 * time.Second,
		InterSendDelay:     5 * time.Second,
		MaxBatchSize:       50,
		SuppressDuplicates: true,
		RecencyWindow:      30 * 24 * time.Hour,
		ScheduleInterval:   24 * time.Hour,
		Tracker: TrackerConfig{
			Backend: TrackerJSON,
			Path:    "sent_log.json",
		},
		RecordsFile: "contacts.csv",
		CVPath:      "cv.pdf",
		LogLevel:    "info",
		LogFile:     "./logs/outreach.log",
		Defaults:    models.DefaultFields(),
		Templates: Templates{
			Outreach: models.Template{
				Subject: "Hello from {sender}",
				Body: "Hi {name},\n\n" +
					"I came across {company} and wanted to reach out about opportunities in {sector}.\n\n" +
					"Best regards,\n{sender}",
			},
			Application: models.Template{
				Subject: "Application for {position} at {company}",
				Body: "Dear {name},\n\n" +
					"I would like to apply for {position} at {company}. My CV is attached.\n\n" +
					"Kind regards,\n{sender}",
			},
		},
	}
}

// Load reads the config file at path. A missing file is created with the
// defaults, reported through created. Environment overrides are applied after
// the file is read and are never written back.
func Load(path string) (cfg *Config, created bool, err error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = Default()
		if err := Save(path, cfg); err != nil {
			return nil, false, err
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("read config: %w", err)
	default:
		cfg, err = Parse(data)
		if err != nil {
			return nil, false, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, created, err
	}
	return cfg, created, nil
}

// Parse decodes YAML on top of the defaults, so absent keys keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Defaults == nil {
		cfg.Defaults = map[string]string{}
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from an env file into the process environment.
// A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Server == "":
		return fmt.Errorf("%w: server is required", ErrInvalid)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	case c.SenderAddress == "":
		return fmt.Errorf("%w: sender_address is required", ErrInvalid)
	case c.InterSendDelay < 0:
		return fmt.Errorf("%w: inter_send_delay must not be negative", ErrInvalid)
	case c.MaxBatchSize < 0:
		return fmt.Errorf("%w: max_batch_size must not be negative", ErrInvalid)
	case c.MaxPerMinute < 0:
		return fmt.Errorf("%w: max_per_minute must not be negative", ErrInvalid)
	case c.ScheduleEnabled && c.ScheduleInterval < time.Second:
		return fmt.Errorf("%w: schedule_interval must be at least 1s", ErrInvalid)
	}

	switch c.Tracker.Backend {
	case TrackerJSON, TrackerSQLite:
	default:
		return fmt.Errorf("%w: unknown tracker backend %q", ErrInvalid, c.Tracker.Backend)
	}
	if c.Tracker.Path == "" {
		return fmt.Errorf("%w: tracker.path is required", ErrInvalid)
	}
	return nil
}

// SenderName returns the display name, falling back to the address.
func (c *Config) SenderName() string {
	if c.SenderDisplayName != "" {
		return c.SenderDisplayName
	}
	return c.SenderAddress
}

// RecordDefaults returns the record field fallbacks plus the sender name
// under the "sender" key.
func (c *Config) RecordDefaults() map[string]string {
	out := make(map[string]string, len(c.Defaults)+1)
	for k, v := range c.Defaults {
		out[k] = v
	}
	if _, ok := out["sender"]; !ok {
		out["sender"] = c.SenderName()
	}
	return out
}

func applyEnv(cfg *Config) {
	cfg.Server = getEnv("SERVER", cfg.Server)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.SenderAddress = getEnv("SENDER_ADDRESS", cfg.SenderAddress)
	cfg.SenderDisplayName = getEnv("SENDER_DISPLAY_NAME", cfg.SenderDisplayName)
	cfg.Username = getEnv("USERNAME", cfg.Username)
	cfg.Password = getEnv("PASSWORD", cfg.Password)
	cfg.UseSSL = getEnvBool("USE_SSL", cfg.UseSSL)
	cfg.Timeout = getEnvDuration("TIMEOUT", cfg.Timeout)
	cfg.InterSendDelay = getEnvDuration("INTER_SEND_DELAY", cfg.InterSendDelay)
	cfg.MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", cfg.MaxBatchSize)
	cfg.MaxPerMinute = getEnvInt("MAX_PER_MINUTE", cfg.MaxPerMinute)
	cfg.SuppressDuplicates = getEnvBool("SUPPRESS_DUPLICATES", cfg.SuppressDuplicates)
	cfg.RecencyWindow = getEnvDuration("RECENCY_WINDOW", cfg.RecencyWindow)
	cfg.ScheduleEnabled = getEnvBool("SCHEDULE_ENABLED", cfg.ScheduleEnabled)
	cfg.ScheduleInterval = getEnvDuration("SCHEDULE_INTERVAL", cfg.ScheduleInterval)
	cfg.RecordsFile = getEnv("RECORDS_FILE", cfg.RecordsFile)
	cfg.CVPath = getEnv("CV_PATH", cfg.CVPath)
	cfg.Tracker.Backend = getEnv("TRACKER_BACKEND", cfg.Tracker.Backend)
	cfg.Tracker.Path = getEnv("TRACKER_PATH", cfg.Tracker.Path)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
}

// getEnv returns the value of a prefixed environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
