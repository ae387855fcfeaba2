package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	errs "ntpdate/pkg/errors"
)

// DefaultHost is queried when no server is given
const DefaultHost = "pool.ntp.org"

// Config holds all configuration options for ntpdate
type Config struct {
	// Remote time source
	NTP NTPConfig `yaml:"ntp" json:"ntp"`

	// Retry policy for the remote query
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Which clocks to set once the remote time is known
	Clock ClockConfig `yaml:"clock" json:"clock"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// NTPConfig holds NTP server settings
type NTPConfig struct {
	Host    string        `yaml:"host" json:"host" validate:"required"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Version int           `yaml:"version" json:"version" validate:"min=2,max=4"`
}

// RetryConfig holds retry settings. Retries counts attempts after the first.
type RetryConfig struct {
	Retries       int           `yaml:"retries" json:"retries" validate:"min=0"`
	InitialDelay  time.Duration `yaml:"initial_delay" json:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	NonRetryable  []string      `yaml:"non_retryable" json:"non_retryable"`
}

// ClockConfig selects which clocks are updated
type ClockConfig struct {
	SetSystem  bool `yaml:"set_system" json:"set_system"`
	SetHWClock bool `yaml:"set_hwclock" json:"set_hwclock"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error disabled"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"min=0"`
	MaxAge     int    `yaml:"max_age" json:"max_age" validate:"min=0"`
	Compress   bool   `yaml:"compress" json:"compress"`
	NoColor    bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NTP: NTPConfig{
			Host:    DefaultHost,
			Timeout: 5 * time.Second,
			Version: 4,
		},
		Retry: RetryConfig{
			Retries:       30,
			InitialDelay:  1 * time.Second,
			BackoffFactor: 2.0,
			MaxDelay:      0,
			NonRetryable:  []string{"not_found", "config"},
		},
		Clock: ClockConfig{
			SetSystem:  false,
			SetHWClock: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from NTPDATE_* environment variables
func (c *Config) LoadFromEnv() error {
	var problems []error

	if host := os.Getenv("NTPDATE_HOST"); host != "" {
		c.NTP.Host = host
	}
	if v := os.Getenv("NTPDATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("NTPDATE_TIMEOUT: %w", err))
		} else {
			c.NTP.Timeout = d
		}
	}

	if v := os.Getenv("NTPDATE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("NTPDATE_RETRIES: %w", err))
		} else {
			c.Retry.Retries = n
		}
	}
	if v := os.Getenv("NTPDATE_INITIAL_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("NTPDATE_INITIAL_DELAY: %w", err))
		} else {
			c.Retry.InitialDelay = d
		}
	}
	if v := os.Getenv("NTPDATE_BACKOFF_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, fmt.Errorf("NTPDATE_BACKOFF_FACTOR: %w", err))
		} else {
			c.Retry.BackoffFactor = f
		}
	}

	if v := os.Getenv("NTPDATE_SET_SYSTEM"); v != "" {
		c.Clock.SetSystem = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("NTPDATE_SET_HWCLOCK"); v != "" {
		c.Clock.SetHWClock = strings.ToLower(v) == "true"
	}

	if logLevel := os.Getenv("NTPDATE_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("NTPDATE_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(problems...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".ntpdate.yaml",
		".ntpdate.yml",
		filepath.Join(home, ".config", "ntpdate", "config.yaml"),
		filepath.Join(home, ".config", "ntpdate", "config.yml"),
		filepath.Join(home, ".ntpdate.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks field constraints and the rules that span fields
func (c *Config) Validate() error {
	var problems []error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Errorf("%s: failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err)
		}
	}

	if c.NTP.Timeout <= 0 {
		problems = append(problems, errors.New("ntp timeout must be positive"))
	}

	// Only meaningful once there is something to back off from
	if c.Retry.Retries > 0 {
		if c.Retry.BackoffFactor <= 1 {
			problems = append(problems, errors.New("backoff factor must be greater than 1"))
		}
		if c.Retry.InitialDelay < 0 {
			problems = append(problems, errors.New("initial delay cannot be negative"))
		}
	}
	if c.Retry.MaxDelay < 0 {
		problems = append(problems, errors.New("max delay cannot be negative"))
	}
	for _, kind := range c.Retry.NonRetryable {
		if _, err := errs.ParseErrorType(kind); err != nil {
			problems = append(problems, fmt.Errorf("non_retryable: %w", err))
		}
	}

	if c.Clock.SetHWClock && !c.Clock.SetSystem {
		problems = append(problems, errors.New("setting the hardware clock requires setting the system clock"))
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in flags are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if host, ok := flags["host"].(string); ok && host != "" {
		c.NTP.Host = host
	}
	if timeout, ok := flags["timeout"].(time.Duration); ok {
		c.NTP.Timeout = timeout
	}
	if retries, ok := flags["retries"].(int); ok {
		c.Retry.Retries = retries
	}
	if delay, ok := flags["initial-delay"].(time.Duration); ok {
		c.Retry.InitialDelay = delay
	}
	if factor, ok := flags["backoff-factor"].(float64); ok {
		c.Retry.BackoffFactor = factor
	}
	if setSystem, ok := flags["set-system"].(bool); ok {
		c.Clock.SetSystem = setSystem
	}
	if setHW, ok := flags["set-hwclock"].(bool); ok {
		c.Clock.SetHWClock = setHW
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if noColor, ok := flags["no-color"].(bool); ok {
		c.Logging.NoColor = noColor
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ntpdate.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
