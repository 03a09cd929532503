// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Browser() BrowserConfig
	Screenshot() ScreenshotConfig
	Assert() AssertConfig
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	// File sink (rotated via lumberjack). Empty disables the file core.
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig controls the HTTP tool API surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrowserConfig controls the shared session's lifecycle policy.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless"`
	Args     []string `mapstructure:"args"`
	// LaunchAttempts bounds the launch retry loop.
	LaunchAttempts int           `mapstructure:"launch_attempts"`
	LaunchBackoff  time.Duration `mapstructure:"launch_backoff"`
	LaunchCap      time.Duration `mapstructure:"launch_cap"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout"`
	// PageAttempts bounds page recreation after a failed liveness probe.
	PageAttempts int           `mapstructure:"page_attempts"`
	PageBackoff  time.Duration `mapstructure:"page_backoff"`
	// MaxSessionAge triggers transparent recycling of the session.
	MaxSessionAge    time.Duration `mapstructure:"max_session_age"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// HeartbeatInterval paces the background state-snapshot log. Zero
	// disables the heartbeat.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// ScreenshotConfig controls the screenshot size manager.
type ScreenshotConfig struct {
	Dir string `mapstructure:"dir"`
	// BaseURL prefixes retrieval URLs for persisted artifacts.
	BaseURL      string `mapstructure:"base_url"`
	MaxSizeBytes int    `mapstructure:"max_size_bytes"`
	// QualityLadder is walked in order when a capture exceeds the budget.
	QualityLadder []int `mapstructure:"quality_ladder"`
}

// AssertConfig controls the assertion template evaluator.
type AssertConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// SettleDelay is the fixed wait applied after the navigation
	// fallback downgrades networkidle to domcontentloaded.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// Config holds the entire application configuration. It uses private
// fields to enforce access through the Interface's getter methods.
type Config struct {
	logger     LoggerConfig
	server     ServerConfig
	browser    BrowserConfig
	screenshot ScreenshotConfig
	assert     AssertConfig
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig         { return c.logger }
func (c *Config) Server() ServerConfig         { return c.server }
func (c *Config) Browser() BrowserConfig       { return c.browser }
func (c *Config) Screenshot() ScreenshotConfig { return c.screenshot }
func (c *Config) Assert() AssertConfig         { return c.assert }

// rawConfig mirrors Config with exported fields for viper unmarshalling.
type rawConfig struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Server     ServerConfig     `mapstructure:"server"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Assert     AssertConfig     `mapstructure:"assert"`
}

// SetDefaults registers every configuration default on the viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "pagesmith")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("server.listen_addr", "127.0.0.1:8931")
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.launch_attempts", 3)
	v.SetDefault("browser.launch_backoff", time.Second)
	v.SetDefault("browser.launch_cap", 10*time.Second)
	v.SetDefault("browser.launch_timeout", 60*time.Second)
	v.SetDefault("browser.page_attempts", 3)
	v.SetDefault("browser.page_backoff", 500*time.Millisecond)
	v.SetDefault("browser.max_session_age", 30*time.Minute)
	v.SetDefault("browser.operation_timeout", 30*time.Second)
	v.SetDefault("browser.heartbeat_interval", time.Minute)

	v.SetDefault("screenshot.dir", "artifacts")
	v.SetDefault("screenshot.base_url", "/artifacts")
	v.SetDefault("screenshot.max_size_bytes", 1<<20)
	v.SetDefault("screenshot.quality_ladder", []int{80, 60, 40, 20})

	v.SetDefault("assert.poll_interval", 200*time.Millisecond)
	v.SetDefault("assert.default_timeout", 5*time.Second)
	v.SetDefault("assert.settle_delay", 2*time.Second)
}

// NewConfigFromViper loads, binds environment variables (PAGESMITH_ prefix)
// and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PAGESMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg := &Config{
		logger:     raw.Logger,
		server:     raw.Server,
		browser:    raw.Browser,
		screenshot: raw.Screenshot,
		assert:     raw.Assert,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.logger.Format)
	}
	if c.server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.browser.LaunchAttempts < 1 {
		return fmt.Errorf("browser.launch_attempts must be >= 1, got %d", c.browser.LaunchAttempts)
	}
	if c.browser.PageAttempts < 1 {
		return fmt.Errorf("browser.page_attempts must be >= 1, got %d", c.browser.PageAttempts)
	}
	if c.browser.MaxSessionAge <= 0 {
		return fmt.Errorf("browser.max_session_age must be positive")
	}
	if c.screenshot.MaxSizeBytes <= 0 {
		return fmt.Errorf("screenshot.max_size_bytes must be positive")
	}
	prev := 101
	for _, q := range c.screenshot.QualityLadder {
		if q < 1 || q > 100 {
			return fmt.Errorf("screenshot.quality_ladder entries must be in [1,100], got %d", q)
		}
		if q >= prev {
			return fmt.Errorf("screenshot.quality_ladder must be strictly descending")
		}
		prev = q
	}
	if c.assert.PollInterval <= 0 {
		return fmt.Errorf("assert.poll_interval must be positive")
	}
	if c.assert.DefaultTimeout <= 0 {
		return fmt.Errorf("assert.default_timeout must be positive")
	}
	return nil
}
