package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roman-kulish/radio-telescope/internal/sdr/rtl"
	"github.com/roman-kulish/radio-telescope/internal/siggen"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
)

const (
	envPrefix = "TELESCOPE"

	defaultOpenAttempts = 5
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings           `mapstructure:"settings"`
	Receiver  ReceiverConfig     `mapstructure:"receiver"`
	Generator GeneratorConfig    `mapstructure:"generator"`
	Observer  telescope.Location `mapstructure:"observer"`
	Timing    TimingConfig       `mapstructure:"timing"`
	Storage   StorageConfig      `mapstructure:"storage"`
	Queue     QueueConfig        `mapstructure:"queue"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `mapstructure:"logLevel"`
}

// Level parses LogLevel, e.g. "debug" or "warn"
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("app.Settings: %w", err)
	}
	return level, nil
}

// ReceiverConfig selects the SDR; Simulate swaps it for the built-in mock
type ReceiverConfig struct {
	rtl.Config `mapstructure:",squash"`
	Simulate   bool `mapstructure:"simulate"`
}

// GeneratorConfig selects the signal generator
type GeneratorConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Device       string `mapstructure:"device"`       // USBTMC device node
	OpenAttempts int    `mapstructure:"openAttempts"` // Retries while the node enumerates
	Simulate     bool   `mapstructure:"simulate"`
}

// TimingConfig selects the capture timestamp source
type TimingConfig struct {
	NTPServer string `mapstructure:"ntpServer"` // Empty uses the system clock
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Catalog string `mapstructure:"catalog"` // Sqlite catalog path; empty disables the catalog
	Bundle  string `mapstructure:"bundle"`  // tar.gz path packing every archive of the run
}

// QueueConfig controls the queue runner
type QueueConfig struct {
	Confirm bool          `mapstructure:"confirm"` // Ask before every item
	Cadence time.Duration `mapstructure:"cadence"` // Minimum interval between observation starts
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings.logLevel", "info")
	v.SetDefault("receiver.deviceIndex", 0)
	v.SetDefault("receiver.ppmError", 0)
	v.SetDefault("receiver.captureTimeout", time.Duration(0))
	v.SetDefault("receiver.simulate", false)
	v.SetDefault("generator.enabled", false)
	v.SetDefault("generator.device", siggen.DefaultPath)
	v.SetDefault("generator.openAttempts", defaultOpenAttempts)
	v.SetDefault("generator.simulate", false)
	v.SetDefault("observer.lat", telescope.NCH.Lat)
	v.SetDefault("observer.lon", telescope.NCH.Lon)
	v.SetDefault("observer.alt", telescope.NCH.Alt)
	v.SetDefault("timing.ntpServer", "")
	v.SetDefault("storage.catalog", "")
	v.SetDefault("storage.bundle", "")
	v.SetDefault("queue.confirm", true)
	v.SetDefault("queue.cadence", time.Duration(0))
}

// LoadConfig reads the configuration file at path, which may be empty to run
// on defaults. Every key can be overridden by a TELESCOPE_ environment
// variable, e.g. TELESCOPE_QUEUE_CONFIRM=false.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if !c.Receiver.Simulate {
		if err := c.Receiver.Config.Validate(); err != nil {
			return err
		}
	}
	if c.Generator.Enabled && !c.Generator.Simulate && c.Generator.Device == "" {
		return errors.New("app.GeneratorConfig: device path is required")
	}
	if c.Generator.OpenAttempts < 1 {
		return fmt.Errorf("app.GeneratorConfig: open attempts must be at least 1: %d given", c.Generator.OpenAttempts)
	}
	if err := c.Observer.Validate(); err != nil {
		return err
	}
	if c.Queue.Cadence < 0 {
		return fmt.Errorf("app.QueueConfig: cadence must not be negative: %s", c.Queue.Cadence)
	}
	return nil
}

// GeneratorEnabled reports whether an instrument, real or simulated, is used
func (c *Config) GeneratorEnabled() bool {
	return c.Generator.Enabled || c.Generator.Simulate
}
