package detector

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

// ErrorRateConfig controls the client error rate detector.
type ErrorRateConfig struct {
	Resource           string
	MaxClientErrorRate int64
}

// ErrorRate flags source addresses producing more client (4xx) errors in a
// pane than the configured maximum. Stateless across panes.
type ErrorRate struct {
	cfg ErrorRateConfig
	log *logging.Logger
}

// NewErrorRate creates the client error rate detector.
func NewErrorRate(cfg ErrorRateConfig, log *logging.Logger) *ErrorRate {
	return &ErrorRate{cfg: cfg, log: log.With("detector", "error_rate")}
}

func (d *ErrorRate) Name() string { return "error_rate" }

// ProcessPane counts client errors per source address and alerts on any
// source whose count exceeds the configured maximum.
func (d *ErrorRate) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	counts := make(map[string]int64)
	for i := range p.Events {
		e := &p.Events[i]
		if !e.IsClientError() || e.SourceAddress == "" {
			continue
		}
		counts[e.SourceAddress]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		if counts[k] > d.cfg.MaxClientErrorRate {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var alerts []*alert.Alert
	for _, key := range keys {
		a := alert.New(alert.CategoryHTTPRequest)
		a.Timestamp = p.MaxTimestamp()
		a.Summary = fmt.Sprintf("%s httprequest error_rate %s %d", d.cfg.Resource, key, counts[key])
		a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicErrorRate))
		a.AddMetadata(alert.MetaSourceAddress, key)
		a.AddMetadata(alert.MetaErrorCount, strconv.FormatInt(counts[key], 10))
		a.AddMetadata(alert.MetaWindowTimestamp, p.MaxTimestamp().UTC().Format(alert.TimestampLayout))
		alerts = append(alerts, a)
	}
	return alerts, nil
}
