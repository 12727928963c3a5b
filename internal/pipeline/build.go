package pipeline

import (
	"fmt"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/config"
	"github.com/telhawk-systems/abusehawk/internal/detector"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
)

// NewStore builds the configured state backend wrapped with bounded retry.
func NewStore(cfg config.StateConfig) (state.Store, error) {
	var backend state.Store
	switch cfg.Backend {
	case "memory":
		backend = state.NewMemoryStore()
	case "redis":
		backend = state.NewRedisStore(cfg.Redis.URL, cfg.Namespace)
	case "postgres":
		backend = state.NewPostgresStore(cfg.Postgres.DSN(), cfg.Namespace)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
	return state.WithRetry(backend, cfg.MaxRetries, 100*time.Millisecond, cfg.OpTimeoutDuration()), nil
}

// Build assembles a fully wired engine from configuration: the enabled
// detectors with their windowing stages, the suppressor, and the sink. The
// distributed account creation detector is registered ahead of the
// per-session one so cluster markers land before member sessions close.
func Build(cfg *config.Config, store state.Store, sink Sink, log *logging.Logger) (*Pipeline, error) {
	selector, err := event.NewAddressSelector(cfg.XFFAddressCIDR)
	if err != nil {
		return nil, err
	}

	sup := alert.NewSuppressor(cfg.Suppression.Window())
	p := New(sink, sup, log)

	resource := cfg.MonitoredResource
	paneInterval := cfg.Windowing.PaneInterval()

	if cfg.Detectors.Threshold.Enabled {
		p.AddPaneDetector(detector.NewThreshold(detector.ThresholdConfig{
			Resource:               resource,
			Modifier:               cfg.Detectors.Threshold.Modifier,
			RequiredMinimumAverage: cfg.Detectors.Threshold.RequiredMinimumAverage,
			RequiredMinimumClients: cfg.Detectors.Threshold.RequiredMinimumClients,
			ClampThresholdMaximum:  cfg.Detectors.Threshold.ClampThresholdMaximum,
			NATDetection:           cfg.Detectors.Threshold.NATDetection,
		}, store, log), paneInterval)
	}

	if cfg.Detectors.ErrorRate.Enabled {
		p.AddPaneDetector(detector.NewErrorRate(detector.ErrorRateConfig{
			Resource:           resource,
			MaxClientErrorRate: cfg.Detectors.ErrorRate.MaxClientErrorRate,
		}, log), paneInterval)
	}

	if cfg.Detectors.Velocity.Enabled {
		p.AddPaneDetector(detector.NewVelocity(detector.VelocityConfig{
			MaxKilometersPerSecond: cfg.Detectors.Velocity.MaxKilometersPerSecond,
		}, store, log), paneInterval)
	}

	if cfg.Detectors.LoginFailure.Enabled {
		p.AddPaneDetector(detector.NewLoginFailure(detector.LoginFailureConfig{
			Resource:         resource,
			Threshold:        cfg.Detectors.LoginFailure.Threshold,
			BenignErrorCodes: cfg.Detectors.LoginFailure.BenignErrorCodes,
			SummaryAnalysis:  cfg.Detectors.LoginFailure.SummaryAnalysis,
		}, log), cfg.Detectors.LoginFailure.Window())
	}

	if cfg.Detectors.AccountCreation.Enabled {
		gap := cfg.Detectors.AccountCreation.SessionGap()
		p.AddPaneDetector(detector.NewDistributedAccountCreation(detector.DistributedAccountCreationConfig{
			Resource:          resource,
			Threshold:         cfg.Detectors.AccountCreation.DistributedThreshold,
			CorrelationWindow: gap,
		}, store, nil, log), gap)
		p.AddSessionDetector(detector.NewAccountCreation(detector.AccountCreationConfig{
			Resource:     resource,
			SessionLimit: cfg.Detectors.AccountCreation.SessionLimit,
			SessionGap:   gap,
		}, store, log), gap, creationSessionKey(selector))
	}

	return p, nil
}

// creationSessionKey keys account creation sessions by coordinating
// address, honoring the XFF selector.
func creationSessionKey(selector *event.AddressSelector) func(event.Event) (string, bool) {
	return func(e event.Event) (string, bool) {
		if e.Kind != event.KindAccountCreate {
			return "", false
		}
		addr := selector.CoordinatingAddress(e)
		if addr == "" {
			return "", false
		}
		return addr, true
	}
}
