package detector

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

const thresholdKeyPrefix = "threshold:"

// BaselineStats is the per-key threshold baseline carried in the state
// store: a cumulative mean of per-pane request counts and the number of
// panes it was computed over. SampleCount never decreases within a run.
type BaselineStats struct {
	Mean        float64 `json:"mean"`
	SampleCount int64   `json:"sample_count"`
}

// update folds a new pane count into the cumulative mean.
func (b *BaselineStats) update(count int64) {
	b.SampleCount++
	b.Mean += (float64(count) - b.Mean) / float64(b.SampleCount)
}

// ThresholdConfig controls the threshold/baseline detector.
type ThresholdConfig struct {
	Resource               string
	Modifier               float64
	RequiredMinimumAverage float64
	RequiredMinimumClients int64
	ClampThresholdMaximum  float64
	NATDetection           bool
}

// Threshold flags source addresses whose per-pane HTTP request count
// exceeds their established baseline mean by a configured modifier.
type Threshold struct {
	cfg   ThresholdConfig
	store state.Store
	log   *logging.Logger
}

// NewThreshold creates the threshold/baseline detector.
func NewThreshold(cfg ThresholdConfig, store state.Store, log *logging.Logger) *Threshold {
	return &Threshold{cfg: cfg, store: store, log: log.With("detector", "threshold_analysis")}
}

func (t *Threshold) Name() string { return "threshold_analysis" }

// effectiveModifier applies the clamp as a floor: the threshold modifier is
// never used as a value lower than the clamp once one is configured.
func (t *Threshold) effectiveModifier() float64 {
	if t.cfg.ClampThresholdMaximum > 0 && t.cfg.Modifier < t.cfg.ClampThresholdMaximum {
		return t.cfg.ClampThresholdMaximum
	}
	return t.cfg.Modifier
}

// ProcessPane counts HTTP requests per source address in the pane, folds
// each count into that source's baseline, and alerts on sources exceeding
// mean times the effective modifier, subject to the minimum-sample and
// minimum-average guards. The updated baseline is saved before any alert
// for the key is emitted.
func (t *Threshold) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	counts := make(map[string]int64)
	for i := range p.Events {
		e := &p.Events[i]
		if e.Kind != event.KindHTTPRequest {
			continue
		}
		if e.SourceAddress == "" {
			t.log.Debug("skipping event", logging.Error(&MalformedEventError{
				Detector: t.Name(), Reason: "missing source address"}))
			continue
		}
		counts[e.SourceAddress]++
	}
	if len(counts) == 0 {
		return nil, nil
	}

	exempt := make(map[string]bool)
	if t.cfg.NATDetection {
		exempt = natExemptSources(p.Events)
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mod := t.effectiveModifier()
	var alerts []*alert.Alert
	for _, key := range keys {
		count := counts[key]
		var stats BaselineStats
		if _, err := state.GetJSON(ctx, t.store, thresholdKeyPrefix+key, &stats); err != nil {
			return alerts, err
		}
		stats.update(count)
		if err := state.SaveJSON(ctx, t.store, thresholdKeyPrefix+key, &stats, 0); err != nil {
			return alerts, err
		}
		if exempt[key] {
			t.log.Debug("source exempted by nat detection", logging.IP(key), logging.Pane(p.Index))
			continue
		}
		if stats.SampleCount < t.cfg.RequiredMinimumClients {
			continue
		}
		if stats.Mean < t.cfg.RequiredMinimumAverage {
			continue
		}
		if float64(count) <= stats.Mean*mod {
			continue
		}
		a := alert.New(alert.CategoryHTTPRequest)
		a.Timestamp = p.MaxTimestamp()
		a.Summary = fmt.Sprintf("%s httprequest threshold_analysis %s %d", t.cfg.Resource, key, count)
		a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicThresholdAnalysis))
		a.AddMetadata(alert.MetaSourceAddress, key)
		a.AddMetadata(alert.MetaCount, strconv.FormatInt(count, 10))
		a.AddMetadata(alert.MetaMean, strconv.FormatFloat(stats.Mean, 'f', 2, 64))
		a.AddMetadata(alert.MetaThresholdModifier, strconv.FormatFloat(mod, 'f', 2, 64))
		a.AddMetadata(alert.MetaWindowTimestamp, p.MaxTimestamp().UTC().Format(alert.TimestampLayout))
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// natExemptSources returns the sources showing successful authentications
// from more than one distinct subject within the pane, a strong signal the
// address fronts many users behind NAT.
func natExemptSources(events []event.Event) map[string]bool {
	subjects := make(map[string]map[string]bool)
	for i := range events {
		e := &events[i]
		if e.Kind != event.KindAuthSuccess || e.SourceAddress == "" || e.SubjectUser == "" {
			continue
		}
		if subjects[e.SourceAddress] == nil {
			subjects[e.SourceAddress] = make(map[string]bool)
		}
		subjects[e.SourceAddress][e.SubjectUser] = true
	}
	exempt := make(map[string]bool)
	for addr, subs := range subjects {
		if len(subs) > 1 {
			exempt[addr] = true
		}
	}
	return exempt
}
