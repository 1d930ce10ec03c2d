package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	watchdogPrefix = "cpuwatch_"

	keyWatchdogService      = watchdogPrefix + "service"
	keyWatchdogThreshold    = watchdogPrefix + "threshold"
	keyWatchdogInterval     = watchdogPrefix + "interval"
	keyWatchdogSampleWindow = watchdogPrefix + "sample_window"
)

// WatchdogConfig configures the `cpuwatch` command.
//
type WatchdogConfig struct {
	// Service is the systemd unit restarted when CPU usage runs too high.
	//
	Service string `mapstructure:"cpuwatch_service"`

	// Threshold is the CPU usage percentage above which Service gets
	// restarted.
	//
	Threshold float64 `mapstructure:"cpuwatch_threshold"`

	// Interval is the number of seconds between two checks.
	//
	Interval int `mapstructure:"cpuwatch_interval"`

	// SampleWindow is the number of seconds CPU usage is averaged over.
	//
	SampleWindow int `mapstructure:"cpuwatch_sample_window"`

	LogLevel string `mapstructure:"log_level"`
}

var watchdogDefaults = map[string]interface{}{
	keyWatchdogService:      "laravel-backend.service",
	keyWatchdogThreshold:    80.0,
	keyWatchdogInterval:     10,
	keyWatchdogSampleWindow: 1,
	keyLogLevel:             "info",
}

// AddWatchdogFlags registers the `cpuwatch` flags on `fs`.
//
func AddWatchdogFlags(fs *pflag.FlagSet) {
	fs.String(watchdogFlagName(keyWatchdogService),
		watchdogDefaults[keyWatchdogService].(string),
		"systemd unit to restart")
	fs.Float64(watchdogFlagName(keyWatchdogThreshold),
		watchdogDefaults[keyWatchdogThreshold].(float64),
		"cpu usage percentage above which the unit is restarted")
	fs.Int(watchdogFlagName(keyWatchdogInterval),
		watchdogDefaults[keyWatchdogInterval].(int),
		"seconds between two checks")
	fs.Int(watchdogFlagName(keyWatchdogSampleWindow),
		watchdogDefaults[keyWatchdogSampleWindow].(int),
		"seconds cpu usage is averaged over")
	fs.String(watchdogFlagName(keyLogLevel),
		watchdogDefaults[keyLogLevel].(string),
		"log level (debug, info, warn, error)")
}

// LoadWatchdog reads the `cpuwatch` configuration from CPUWATCH_* variables
// and flags.
//
func LoadWatchdog(fs *pflag.FlagSet) (*WatchdogConfig, error) {
	v := viper.New()

	for key, value := range watchdogDefaults {
		v.SetDefault(key, value)
	}

	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := bindFlags(v, fs, watchdogDefaults, watchdogFlagName); err != nil {
		return nil, err
	}

	cfg := &WatchdogConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return cfg, nil
}

func (c *WatchdogConfig) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("%s must not be empty", envName(keyWatchdogService))
	}

	if c.Threshold <= 0 || c.Threshold > 100 {
		return fmt.Errorf("%s must be within (0, 100], got %g",
			envName(keyWatchdogThreshold), c.Threshold)
	}

	if c.Interval <= 0 {
		return fmt.Errorf("%s must be positive, got %d",
			envName(keyWatchdogInterval), c.Interval)
	}

	if c.SampleWindow <= 0 {
		return fmt.Errorf("%s must be positive, got %d",
			envName(keyWatchdogSampleWindow), c.SampleWindow)
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", envName(keyLogLevel), err)
	}

	return nil
}

func (c *WatchdogConfig) CheckInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c *WatchdogConfig) Window() time.Duration {
	return time.Duration(c.SampleWindow) * time.Second
}

func watchdogFlagName(key string) string {
	return flagName(strings.TrimPrefix(key, watchdogPrefix))
}
