package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Toggles is an optional per-deployment overlay that switches individual
// heuristics on or off without touching the main configuration. Absent
// fields leave the configured value alone.
type Toggles struct {
	EnableThresholdAnalysis *bool `yaml:"enable_threshold_analysis"`
	EnableErrorRateAnalysis *bool `yaml:"enable_error_rate_analysis"`
	EnableVelocityDetector  *bool `yaml:"enable_velocity_detector"`
	EnableAccountCreation   *bool `yaml:"enable_account_creation_abuse_detector"`
	EnableLoginFailure      *bool `yaml:"enable_source_login_failure_detector"`
	EnableSummaryAnalysis   *bool `yaml:"enable_summary_analysis"`
}

// LoadToggles reads a toggles overlay from path.
func LoadToggles(path string) (*Toggles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read toggles file: %w", err)
	}
	var t Toggles
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse toggles file: %w", err)
	}
	return &t, nil
}

// Apply folds the overlay into cfg.
func (t *Toggles) Apply(cfg *Config) {
	if t.EnableThresholdAnalysis != nil {
		cfg.Detectors.Threshold.Enabled = *t.EnableThresholdAnalysis
	}
	if t.EnableErrorRateAnalysis != nil {
		cfg.Detectors.ErrorRate.Enabled = *t.EnableErrorRateAnalysis
	}
	if t.EnableVelocityDetector != nil {
		cfg.Detectors.Velocity.Enabled = *t.EnableVelocityDetector
	}
	if t.EnableAccountCreation != nil {
		cfg.Detectors.AccountCreation.Enabled = *t.EnableAccountCreation
	}
	if t.EnableLoginFailure != nil {
		cfg.Detectors.LoginFailure.Enabled = *t.EnableLoginFailure
	}
	if t.EnableSummaryAnalysis != nil {
		cfg.Detectors.LoginFailure.SummaryAnalysis = *t.EnableSummaryAnalysis
	}
}
