// Package config loads and validates the engine configuration.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime configuration for the detection engine.
type Config struct {
	MonitoredResource string          `yaml:"monitored_resource" mapstructure:"monitored_resource"`
	Detectors         DetectorsConfig `yaml:"detectors" mapstructure:"detectors"`
	Windowing         WindowingConfig `yaml:"windowing" mapstructure:"windowing"`
	Suppression       SuppressConfig  `yaml:"suppression" mapstructure:"suppression"`
	XFFAddressCIDR    string          `yaml:"xff_address_selector" mapstructure:"xff_address_selector"`
	State             StateConfig     `yaml:"state" mapstructure:"state"`
	NATS              NATSConfig      `yaml:"nats" mapstructure:"nats"`
	Log               LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics           MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// DetectorsConfig groups the per-heuristic settings.
type DetectorsConfig struct {
	Threshold       ThresholdConfig       `yaml:"threshold" mapstructure:"threshold"`
	ErrorRate       ErrorRateConfig       `yaml:"error_rate" mapstructure:"error_rate"`
	Velocity        VelocityConfig        `yaml:"velocity" mapstructure:"velocity"`
	AccountCreation AccountCreationConfig `yaml:"account_creation" mapstructure:"account_creation"`
	LoginFailure    LoginFailureConfig    `yaml:"login_failure" mapstructure:"login_failure"`
}

// ThresholdConfig captures threshold/baseline analysis settings.
type ThresholdConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	Modifier               float64 `yaml:"modifier" mapstructure:"modifier"`
	RequiredMinimumAverage float64 `yaml:"required_minimum_average" mapstructure:"required_minimum_average"`
	RequiredMinimumClients int64   `yaml:"required_minimum_clients" mapstructure:"required_minimum_clients"`
	ClampThresholdMaximum  float64 `yaml:"clamp_threshold_maximum" mapstructure:"clamp_threshold_maximum"`
	NATDetection           bool    `yaml:"nat_detection" mapstructure:"nat_detection"`
}

// ErrorRateConfig captures client error rate settings.
type ErrorRateConfig struct {
	Enabled            bool  `yaml:"enabled" mapstructure:"enabled"`
	MaxClientErrorRate int64 `yaml:"max_client_error_rate" mapstructure:"max_client_error_rate"`
}

// VelocityConfig captures velocity detector settings.
type VelocityConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxKilometersPerSecond float64 `yaml:"max_kilometers_per_second" mapstructure:"max_kilometers_per_second"`
}

// AccountCreationConfig captures account creation abuse settings.
type AccountCreationConfig struct {
	Enabled              bool  `yaml:"enabled" mapstructure:"enabled"`
	SessionLimit         int64 `yaml:"session_limit" mapstructure:"session_limit"`
	DistributedThreshold int64 `yaml:"distributed_threshold" mapstructure:"distributed_threshold"`
	SessionGapMinutes    int64 `yaml:"session_gap_minutes" mapstructure:"session_gap_minutes"`
}

// SessionGap returns the session inactivity gap as a duration.
func (c AccountCreationConfig) SessionGap() time.Duration {
	return time.Duration(c.SessionGapMinutes) * time.Minute
}

// LoginFailureConfig captures login failure detector settings.
type LoginFailureConfig struct {
	Enabled          bool     `yaml:"enabled" mapstructure:"enabled"`
	Threshold        int64    `yaml:"threshold" mapstructure:"threshold"`
	BenignErrorCodes []string `yaml:"benign_error_codes" mapstructure:"benign_error_codes"`
	SummaryAnalysis  bool     `yaml:"summary_analysis" mapstructure:"summary_analysis"`
	WindowSeconds    int64    `yaml:"window_seconds" mapstructure:"window_seconds"`
}

// Window returns the login failure window as a duration.
func (c LoginFailureConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// WindowingConfig captures global pane settings.
type WindowingConfig struct {
	PaneIntervalSeconds int64 `yaml:"pane_interval_seconds" mapstructure:"pane_interval_seconds"`
}

// PaneInterval returns the global pane width as a duration.
func (c WindowingConfig) PaneInterval() time.Duration {
	return time.Duration(c.PaneIntervalSeconds) * time.Second
}

// SuppressConfig captures alert suppression settings.
type SuppressConfig struct {
	WindowSeconds int64 `yaml:"window_seconds" mapstructure:"window_seconds"`
}

// Window returns the suppression window as a duration.
func (c SuppressConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// StateConfig captures state backend settings.
type StateConfig struct {
	Backend    string         `yaml:"backend" mapstructure:"backend"`
	Namespace  string         `yaml:"namespace" mapstructure:"namespace"`
	Redis      RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Postgres   PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	MaxRetries int            `yaml:"max_retries" mapstructure:"max_retries"`
	OpTimeout  string         `yaml:"op_timeout" mapstructure:"op_timeout"`
}

// OpTimeoutDuration returns the per-operation timeout, defaulting to five
// seconds when unparseable.
func (c StateConfig) OpTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.OpTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// RedisConfig captures Redis backend settings.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// PostgresConfig captures Postgres backend settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// DSN returns the connection string for the Postgres backend.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// NATSConfig captures NATS transport settings.
type NATSConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	Subject      string `yaml:"subject" mapstructure:"subject"`
	AlertSubject string `yaml:"alert_subject" mapstructure:"alert_subject"`
}

// LogConfig captures logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// MetricsConfig captures the metrics listener settings.
type MetricsConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// Load reads configuration from the provided path and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("monitored_resource", "unspecified")

	v.SetDefault("detectors.threshold.enabled", false)
	v.SetDefault("detectors.threshold.modifier", 75.0)
	v.SetDefault("detectors.threshold.required_minimum_average", 0.0)
	v.SetDefault("detectors.threshold.required_minimum_clients", 0)
	v.SetDefault("detectors.threshold.clamp_threshold_maximum", 0.0)
	v.SetDefault("detectors.threshold.nat_detection", false)

	v.SetDefault("detectors.error_rate.enabled", false)
	v.SetDefault("detectors.error_rate.max_client_error_rate", 30)

	v.SetDefault("detectors.velocity.enabled", false)
	v.SetDefault("detectors.velocity.max_kilometers_per_second", 0.277)

	v.SetDefault("detectors.account_creation.enabled", false)
	v.SetDefault("detectors.account_creation.session_limit", 5)
	v.SetDefault("detectors.account_creation.distributed_threshold", 5)
	v.SetDefault("detectors.account_creation.session_gap_minutes", 30)

	v.SetDefault("detectors.login_failure.enabled", false)
	v.SetDefault("detectors.login_failure.threshold", 10)
	v.SetDefault("detectors.login_failure.benign_error_codes", []string{})
	v.SetDefault("detectors.login_failure.summary_analysis", false)
	v.SetDefault("detectors.login_failure.window_seconds", 300)

	v.SetDefault("windowing.pane_interval_seconds", 60)
	v.SetDefault("suppression.window_seconds", 900)
	v.SetDefault("xff_address_selector", "")

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.namespace", "abusehawk")
	v.SetDefault("state.redis.url", "redis://localhost:6379/0")
	v.SetDefault("state.postgres.host", "localhost")
	v.SetDefault("state.postgres.port", 5432)
	v.SetDefault("state.postgres.user", "abusehawk")
	v.SetDefault("state.postgres.password", "")
	v.SetDefault("state.postgres.database", "abusehawk")
	v.SetDefault("state.postgres.sslmode", "disable")
	v.SetDefault("state.max_retries", 3)
	v.SetDefault("state.op_timeout", "5s")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "events.normalized")
	v.SetDefault("nats.alert_subject", "alerts.abusehawk")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.listen", ":9090")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/abusehawk")
	}

	v.SetEnvPrefix("ABUSEHAWK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidationError reports an invalid configuration value. Fatal at startup;
// the engine must not run with an invalid configuration.
type ValidationError struct {
	Option string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Option, e.Reason)
}

// Validate checks the configuration before the pipeline starts.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "memory", "redis", "postgres":
	default:
		return &ValidationError{Option: "state.backend", Reason: fmt.Sprintf("unknown backend %q", c.State.Backend)}
	}
	if c.XFFAddressCIDR != "" {
		if _, err := netip.ParsePrefix(c.XFFAddressCIDR); err != nil {
			return &ValidationError{Option: "xff_address_selector", Reason: err.Error()}
		}
	}
	if c.Detectors.Threshold.Enabled && c.Detectors.Threshold.Modifier <= 0 {
		return &ValidationError{Option: "detectors.threshold.modifier", Reason: "must be positive"}
	}
	if c.Detectors.Velocity.Enabled && c.Detectors.Velocity.MaxKilometersPerSecond <= 0 {
		return &ValidationError{Option: "detectors.velocity.max_kilometers_per_second", Reason: "must be positive"}
	}
	if c.Detectors.AccountCreation.Enabled {
		if c.Detectors.AccountCreation.SessionLimit <= 0 {
			return &ValidationError{Option: "detectors.account_creation.session_limit", Reason: "must be positive"}
		}
		if c.Detectors.AccountCreation.DistributedThreshold <= 0 {
			return &ValidationError{Option: "detectors.account_creation.distributed_threshold", Reason: "must be positive"}
		}
		if c.Detectors.AccountCreation.SessionGapMinutes <= 0 {
			return &ValidationError{Option: "detectors.account_creation.session_gap_minutes", Reason: "must be positive"}
		}
	}
	if c.Detectors.LoginFailure.Enabled {
		if c.Detectors.LoginFailure.Threshold <= 0 {
			return &ValidationError{Option: "detectors.login_failure.threshold", Reason: "must be positive"}
		}
		if c.Detectors.LoginFailure.WindowSeconds <= 0 {
			return &ValidationError{Option: "detectors.login_failure.window_seconds", Reason: "must be positive"}
		}
	}
	if c.Detectors.ErrorRate.Enabled && c.Detectors.ErrorRate.MaxClientErrorRate <= 0 {
		return &ValidationError{Option: "detectors.error_rate.max_client_error_rate", Reason: "must be positive"}
	}
	if c.Windowing.PaneIntervalSeconds <= 0 {
		return &ValidationError{Option: "windowing.pane_interval_seconds", Reason: "must be positive"}
	}
	if c.Suppression.WindowSeconds < 0 {
		return &ValidationError{Option: "suppression.window_seconds", Reason: "must not be negative"}
	}
	return nil
}
