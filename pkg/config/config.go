// Package config loads the exporter's settings from the environment and
// command-line flags.
//
// Every setting can be given either as an environment variable (e.g.,
// RABBITMQ_HOST) or as the matching flag (e.g., --rabbitmq-host), flags
// taking precedence. Values are read once at startup.
//
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	keyRabbitMQHost     = "rabbitmq_host"
	keyRabbitMQPort     = "rabbitmq_port"
	keyRabbitMQScheme   = "rabbitmq_scheme"
	keyRabbitMQUser     = "rabbitmq_user"
	keyRabbitMQPassword = "rabbitmq_password"
	keyMetricsPort      = "metrics_port"
	keyTelemetryPath    = "telemetry_path"
	keyScrapeInterval   = "scrape_interval"
	keyRequestTimeout   = "request_timeout"
	keyLogLevel         = "log_level"

	// maxDerivedTimeout caps the request timeout derived from the scrape
	// interval when none is set explicitly.
	//
	maxDerivedTimeout = 10 * time.Second
)

// Config is the exporter's configuration.
//
type Config struct {
	RabbitMQHost     string `mapstructure:"rabbitmq_host"`
	RabbitMQPort     int    `mapstructure:"rabbitmq_port"`
	RabbitMQScheme   string `mapstructure:"rabbitmq_scheme"`
	RabbitMQUser     string `mapstructure:"rabbitmq_user"`
	RabbitMQPassword string `mapstructure:"rabbitmq_password"`

	MetricsPort   int    `mapstructure:"metrics_port"`
	TelemetryPath string `mapstructure:"telemetry_path"`

	// ScrapeInterval is the number of seconds between two collection
	// cycles.
	//
	ScrapeInterval int `mapstructure:"scrape_interval"`

	// RequestTimeout is the number of seconds a single request to the
	// management API may take. 0 derives it from ScrapeInterval.
	//
	RequestTimeout int `mapstructure:"request_timeout"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]interface{}{
	keyRabbitMQHost:     "localhost",
	keyRabbitMQPort:     15672,
	keyRabbitMQScheme:   "http",
	keyRabbitMQUser:     "guest",
	keyRabbitMQPassword: "guest",
	keyMetricsPort:      8000,
	keyTelemetryPath:    "/metrics",
	keyScrapeInterval:   30,
	keyRequestTimeout:   0,
	keyLogLevel:         "info",
}

// AddFlags registers one flag per setting on `fs`.
//
func AddFlags(fs *pflag.FlagSet) {
	fs.String(flagName(keyRabbitMQHost), defaults[keyRabbitMQHost].(string),
		"host of the rabbitmq management api (also used as the `host` label)")
	fs.Int(flagName(keyRabbitMQPort), defaults[keyRabbitMQPort].(int),
		"port of the rabbitmq management api")
	fs.String(flagName(keyRabbitMQScheme), defaults[keyRabbitMQScheme].(string),
		"scheme used to reach the management api (http or https)")
	fs.String(flagName(keyRabbitMQUser), defaults[keyRabbitMQUser].(string),
		"basic-auth user for the management api")
	fs.String(flagName(keyRabbitMQPassword), defaults[keyRabbitMQPassword].(string),
		"basic-auth password for the management api")
	fs.Int(flagName(keyMetricsPort), defaults[keyMetricsPort].(int),
		"port to serve prometheus metrics on")
	fs.String(flagName(keyTelemetryPath), defaults[keyTelemetryPath].(string),
		"endpoint at which prometheus metrics are served")
	fs.Int(flagName(keyScrapeInterval), defaults[keyScrapeInterval].(int),
		"seconds between two collections")
	fs.Int(flagName(keyRequestTimeout), defaults[keyRequestTimeout].(int),
		"seconds a management api request may take (0: min(10, interval/2))")
	fs.String(flagName(keyLogLevel), defaults[keyLogLevel].(string),
		"log level (debug, info, warn, error)")
}

// Load reads the configuration from the environment, overridden by any flag
// explicitly set in `fs` (which may be nil), and validates it.
//
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := bindFlags(v, fs, defaults, flagName); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
//
func (c *Config) Validate() error {
	if c.RabbitMQHost == "" {
		return fmt.Errorf("%s must not be empty", envName(keyRabbitMQHost))
	}

	if err := validatePort(keyRabbitMQPort, c.RabbitMQPort); err != nil {
		return err
	}

	if err := validatePort(keyMetricsPort, c.MetricsPort); err != nil {
		return err
	}

	if c.RabbitMQScheme != "http" && c.RabbitMQScheme != "https" {
		return fmt.Errorf("%s must be http or https, got '%s'",
			envName(keyRabbitMQScheme), c.RabbitMQScheme)
	}

	if !strings.HasPrefix(c.TelemetryPath, "/") {
		return fmt.Errorf("%s must start with '/', got '%s'",
			envName(keyTelemetryPath), c.TelemetryPath)
	}

	if strings.ContainsAny(c.TelemetryPath, " \t{}") {
		return fmt.Errorf("%s must not contain blanks or braces, got '%s'",
			envName(keyTelemetryPath), c.TelemetryPath)
	}

	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %d",
			envName(keyScrapeInterval), c.ScrapeInterval)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("%s must not be negative, got %d",
			envName(keyRequestTimeout), c.RequestTimeout)
	}

	if c.Timeout() >= c.Interval() {
		return fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			envName(keyRequestTimeout), c.Timeout(),
			envName(keyScrapeInterval), c.Interval())
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", envName(keyLogLevel), err)
	}

	return nil
}

// Interval is the time between two collection cycles.
//
func (c *Config) Interval() time.Duration {
	return time.Duration(c.ScrapeInterval) * time.Second
}

// Timeout is the effective management API request timeout.
//
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout > 0 {
		return time.Duration(c.RequestTimeout) * time.Second
	}

	derived := c.Interval() / 2
	if derived > maxDerivedTimeout {
		return maxDerivedTimeout
	}

	return derived
}

// BaseURL is the root of the management API, e.g. http://localhost:15672.
//
func (c *Config) BaseURL() string {
	u := url.URL{
		Scheme: c.RabbitMQScheme,
		Host:   net.JoinHostPort(c.RabbitMQHost, strconv.Itoa(c.RabbitMQPort)),
	}

	return u.String()
}

// BindAddress is the address the metrics endpoint listens on.
//
func (c *Config) BindAddress() string {
	return ":" + strconv.Itoa(c.MetricsPort)
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be within 1-65535, got %d", envName(key), port)
	}

	return nil
}

// bindFlags makes every flag of `fs` named `nameOf(key)` take precedence
// over the environment for `key`, as long as it was explicitly set.
//
func bindFlags(
	v *viper.Viper, fs *pflag.FlagSet,
	keys map[string]interface{}, nameOf func(string) string,
) error {
	if fs == nil {
		return nil
	}

	for key := range keys {
		flag := fs.Lookup(nameOf(key))
		if flag == nil {
			continue
		}

		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag '%s': %w", flag.Name, err)
		}
	}

	return nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func envName(key string) string {
	return strings.ToUpper(key)
}
