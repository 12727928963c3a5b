package detector

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

// LoginFailureConfig controls the source login failure detector.
type LoginFailureConfig struct {
	Resource         string
	Threshold        int64
	BenignErrorCodes []string
	SummaryAnalysis  bool
}

// LoginFailure counts authentication failures per source address within a
// fixed window, excluding failures carrying a benign error code, and alerts
// on sources at or over the threshold. With summary analysis enabled it
// also emits a per-pane rollup of countable failures; the rollup is
// observability output and carries no suppression key.
type LoginFailure struct {
	cfg    LoginFailureConfig
	benign map[string]bool
	log    *logging.Logger
}

// NewLoginFailure creates the login failure detector.
func NewLoginFailure(cfg LoginFailureConfig, log *logging.Logger) *LoginFailure {
	benign := make(map[string]bool, len(cfg.BenignErrorCodes))
	for _, code := range cfg.BenignErrorCodes {
		benign[code] = true
	}
	return &LoginFailure{cfg: cfg, benign: benign, log: log.With("detector", "source_login_failure")}
}

func (d *LoginFailure) Name() string { return "source_login_failure" }

// ProcessPane counts countable failures per source and emits one alert per
// source at or over the threshold, reporting the most-targeted account for
// that source.
func (d *LoginFailure) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	counts := make(map[string]int64)
	targets := make(map[string]map[string]int64)
	var total int64
	for i := range p.Events {
		e := &p.Events[i]
		if e.Kind != event.KindAuthFailure {
			continue
		}
		if e.ErrorCode != "" && d.benign[e.ErrorCode] {
			continue
		}
		if e.SourceAddress == "" {
			d.log.Debug("skipping event", logging.Error(&MalformedEventError{
				Detector: d.Name(), Reason: "failure event without source address"}))
			continue
		}
		counts[e.SourceAddress]++
		total++
		if e.SubjectUser != "" {
			if targets[e.SourceAddress] == nil {
				targets[e.SourceAddress] = make(map[string]int64)
			}
			targets[e.SourceAddress][e.SubjectUser]++
		}
	}

	windowSecs := int64(p.End.Sub(p.Start).Seconds())

	keys := make([]string, 0, len(counts))
	for k := range counts {
		if counts[k] >= d.cfg.Threshold {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var alerts []*alert.Alert
	for _, key := range keys {
		a := alert.New(alert.CategoryCustoms)
		a.Timestamp = p.MaxTimestamp()
		a.Summary = fmt.Sprintf("%s source login failure threshold exceeded, %s %d in %d seconds",
			d.cfg.Resource, key, counts[key], windowSecs)
		a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicSourceLoginFailure))
		a.AddMetadata(alert.MetaCustomsCategory, string(alert.HeuristicSourceLoginFailure))
		a.AddMetadata(alert.MetaSourceAddress, key)
		a.AddMetadata(alert.MetaCount, strconv.FormatInt(counts[key], 10))
		a.AddMetadata(alert.MetaEmail, mostTargeted(targets[key]))
		alerts = append(alerts, a)
	}

	if d.cfg.SummaryAnalysis && total > 0 {
		a := alert.New(alert.CategoryCustoms)
		a.Timestamp = p.MaxTimestamp()
		a.Summary = fmt.Sprintf("%s summary for period, login_failure %d", d.cfg.Resource, total)
		a.AddMetadata(alert.MetaCustomsCategory, string(alert.HeuristicSummary))
		a.AddMetadata(alert.MetaLoginFailure, strconv.FormatInt(total, 10))
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// mostTargeted returns the account with the highest failure count, ties
// broken lexically for a deterministic pick.
func mostTargeted(counts map[string]int64) string {
	var best string
	var bestN int64
	for acct, n := range counts {
		if n > bestN || (n == bestN && (best == "" || acct < best)) {
			best = acct
			bestN = n
		}
	}
	return best
}
