package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "unspecified", cfg.MonitoredResource)
	assert.Equal(t, 75.0, cfg.Detectors.Threshold.Modifier)
	assert.False(t, cfg.Detectors.Threshold.Enabled)
	assert.Equal(t, int64(30), cfg.Detectors.ErrorRate.MaxClientErrorRate)
	assert.Equal(t, 0.277, cfg.Detectors.Velocity.MaxKilometersPerSecond)
	assert.Equal(t, int64(5), cfg.Detectors.AccountCreation.SessionLimit)
	assert.Equal(t, int64(5), cfg.Detectors.AccountCreation.DistributedThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Detectors.AccountCreation.SessionGap())
	assert.Equal(t, int64(10), cfg.Detectors.LoginFailure.Threshold)
	assert.Equal(t, 300*time.Second, cfg.Detectors.LoginFailure.Window())
	assert.Equal(t, 60*time.Second, cfg.Windowing.PaneInterval())
	assert.Equal(t, 900*time.Second, cfg.Suppression.Window())
	assert.Equal(t, "memory", cfg.State.Backend)
	assert.Equal(t, "abusehawk", cfg.State.Namespace)
	assert.Equal(t, 5*time.Second, cfg.State.OpTimeoutDuration())
	assert.Equal(t, "events.normalized", cfg.NATS.Subject)
	assert.Equal(t, "alerts.abusehawk", cfg.NATS.AlertSubject)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monitored_resource: prod
detectors:
  threshold:
    enabled: true
    modifier: 2.5
  login_failure:
    enabled: true
    benign_error_codes: ["550", "551"]
state:
  backend: redis
  redis:
    url: redis://cache:6379/1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.MonitoredResource)
	assert.True(t, cfg.Detectors.Threshold.Enabled)
	assert.Equal(t, 2.5, cfg.Detectors.Threshold.Modifier)
	assert.Equal(t, []string{"550", "551"}, cfg.Detectors.LoginFailure.BenignErrorCodes)
	assert.Equal(t, "redis", cfg.State.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.State.Redis.URL)
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(10), cfg.Detectors.LoginFailure.Threshold)
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	cases := []struct {
		name   string
		mutate func(*Config)
		option string
	}{
		{
			name:   "unknown state backend",
			mutate: func(c *Config) { c.State.Backend = "etcd" },
			option: "state.backend",
		},
		{
			name:   "bad xff selector cidr",
			mutate: func(c *Config) { c.XFFAddressCIDR = "not-a-cidr" },
			option: "xff_address_selector",
		},
		{
			name: "non-positive threshold modifier",
			mutate: func(c *Config) {
				c.Detectors.Threshold.Enabled = true
				c.Detectors.Threshold.Modifier = 0
			},
			option: "detectors.threshold.modifier",
		},
		{
			name: "non-positive velocity limit",
			mutate: func(c *Config) {
				c.Detectors.Velocity.Enabled = true
				c.Detectors.Velocity.MaxKilometersPerSecond = -1
			},
			option: "detectors.velocity.max_kilometers_per_second",
		},
		{
			name: "non-positive session limit",
			mutate: func(c *Config) {
				c.Detectors.AccountCreation.Enabled = true
				c.Detectors.AccountCreation.SessionLimit = 0
			},
			option: "detectors.account_creation.session_limit",
		},
		{
			name: "non-positive login failure window",
			mutate: func(c *Config) {
				c.Detectors.LoginFailure.Enabled = true
				c.Detectors.LoginFailure.WindowSeconds = 0
			},
			option: "detectors.login_failure.window_seconds",
		},
		{
			name:   "non-positive pane interval",
			mutate: func(c *Config) { c.Windowing.PaneIntervalSeconds = 0 },
			option: "windowing.pane_interval_seconds",
		},
		{
			name:   "negative suppression window",
			mutate: func(c *Config) { c.Suppression.WindowSeconds = -1 },
			option: "suppression.window_seconds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.option, verr.Option)
		})
	}
}

func TestOpTimeoutDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, StateConfig{OpTimeout: "2s"}.OpTimeoutDuration())
	assert.Equal(t, 5*time.Second, StateConfig{OpTimeout: "garbage"}.OpTimeoutDuration())
	assert.Equal(t, 5*time.Second, StateConfig{OpTimeout: "-1s"}.OpTimeoutDuration())
}

func TestToggles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toggles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enable_threshold_analysis: false
enable_source_login_failure_detector: true
enable_summary_analysis: true
`), 0o600))

	tg, err := LoadToggles(path)
	require.NoError(t, err)

	cfg := validConfig()
	cfg.Detectors.Threshold.Enabled = true
	cfg.Detectors.Velocity.Enabled = true

	tg.Apply(cfg)
	assert.False(t, cfg.Detectors.Threshold.Enabled)
	assert.True(t, cfg.Detectors.LoginFailure.Enabled)
	assert.True(t, cfg.Detectors.LoginFailure.SummaryAnalysis)
	// Absent toggles leave the configured value alone.
	assert.True(t, cfg.Detectors.Velocity.Enabled)

	_, err = LoadToggles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
