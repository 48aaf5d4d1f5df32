// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/retry"
)

// Config holds the entire harness configuration.
type Config struct {
	// Browser names the engine variant: chromium, firefox or webkit. Unknown
	// names fall back to chromium.
	Browser string `mapstructure:"browser" yaml:"browser"`
	// Headless is kept as text and parsed leniently by HeadlessMode.
	Headless  string          `mapstructure:"headless" yaml:"headless"`
	BaseURL   string          `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Driver    DriverConfig    `mapstructure:"driver" yaml:"driver"`
	Wait      WaitConfig      `mapstructure:"wait" yaml:"wait"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
}

// DriverConfig selects and tunes the automation client.
type DriverConfig struct {
	Name           string        `mapstructure:"name" yaml:"name" validate:"oneof=playwright cdp"`
	Install        bool          `mapstructure:"install" yaml:"install"`
	InstallTimeout time.Duration `mapstructure:"install_timeout" yaml:"install_timeout" validate:"gt=0"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout" validate:"gt=0"`
	// LaunchRate caps context constructions per second; zero disables the limit.
	LaunchRate  float64  `mapstructure:"launch_rate" yaml:"launch_rate" validate:"gte=0"`
	LaunchBurst int      `mapstructure:"launch_burst" yaml:"launch_burst" validate:"gte=1"`
	Args        []string `mapstructure:"args" yaml:"args"`
}

// WaitConfig holds the default synchronization timeouts.
type WaitConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout" validate:"gt=0"`
}

// RetryConfig bounds the click retry loop.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff" validate:"gte=0"`
}

// RunnerConfig controls scenario scheduling.
type RunnerConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1"`
}

// ArtifactsConfig controls failure evidence.
type ArtifactsConfig struct {
	Dir                 string `mapstructure:"dir" yaml:"dir" validate:"required"`
	ScreenshotOnFailure bool   `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Variant resolves the configured browser name.
func (c *Config) Variant() browser.Variant { return browser.ParseVariant(c.Browser) }

// HeadlessMode parses the headless setting. Anything strconv.ParseBool
// rejects, including an empty value, means headed.
func (c *Config) HeadlessMode() bool {
	b, err := strconv.ParseBool(strings.TrimSpace(c.Headless))
	return err == nil && b
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Retry.MaxAttempts, Backoff: c.Retry.Backoff}
}

// LaunchOptions builds the browser launch options for the configured mode.
func (c *Config) LaunchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		Headless: c.HeadlessMode(),
		Args:     append([]string(nil), c.Driver.Args...),
		Timeout:  c.Driver.LaunchTimeout,
	}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("browser", string(browser.Chromium))
	v.SetDefault("headless", "false")
	v.SetDefault("base_url", "")

	// -- Driver --
	v.SetDefault("driver.name", "playwright")
	v.SetDefault("driver.install", false)
	v.SetDefault("driver.install_timeout", "10m")
	v.SetDefault("driver.launch_timeout", "60s")
	v.SetDefault("driver.launch_rate", 0.0)
	v.SetDefault("driver.launch_burst", 1)
	v.SetDefault("driver.args", []string{})

	// -- Waits --
	v.SetDefault("wait.timeout", "10s")
	v.SetDefault("wait.navigation_timeout", "30s")
	v.SetDefault("wait.action_timeout", "5s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.backoff", retry.DefaultBackoff.String())

	// -- Runner --
	v.SetDefault("runner.concurrency", 4)

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.screenshot_on_failure", true)

	// -- Metrics --
	v.SetDefault("metrics.addr", "")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uiharness")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("expanding artifacts.dir: %w", err)
	}
	cfg.Artifacts.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance reports field errors by their configuration key.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validateInst = v
	})
	return validateInst
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.driver.name"; drop the root type.
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", key, fe.Tag()+paramSuffix(fe.Param()), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
