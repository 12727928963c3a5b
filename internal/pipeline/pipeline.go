// Package pipeline wires the windowing layer, the detectors, and the alert
// suppressor into a single event-driven engine. Each detector owns its own
// windowing instance so interval and gap settings differ per heuristic;
// within one engine instance panes are processed sequentially in watermark
// order, so per-key state updates are never concurrent.
package pipeline

import (
	"context"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/detector"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/metrics"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

// Sink receives the final, deduplicated alert stream.
type Sink interface {
	Emit(ctx context.Context, a *alert.Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a *alert.Alert) error

func (f SinkFunc) Emit(ctx context.Context, a *alert.Alert) error { return f(ctx, a) }

type paneUnit struct {
	det     detector.PaneDetector
	windows *windowing.GlobalWindows
}

type sessionUnit struct {
	det     detector.SessionDetector
	windows *windowing.SessionWindows
}

// Pipeline is the detection engine. Construct with New, register detectors,
// then feed events with Process and finish with Drain.
type Pipeline struct {
	sink       Sink
	suppressor *alert.Suppressor
	log        *logging.Logger

	paneUnits    []paneUnit
	sessionUnits []sessionUnit
}

// New creates an engine emitting to sink through the given suppressor.
func New(sink Sink, suppressor *alert.Suppressor, log *logging.Logger) *Pipeline {
	return &Pipeline{sink: sink, suppressor: suppressor, log: log}
}

// AddPaneDetector registers a detector fed from a global window with the
// given pane interval. Detectors are evaluated in registration order, which
// is significant when one detector's state writes gate another's output.
func (p *Pipeline) AddPaneDetector(d detector.PaneDetector, interval time.Duration) {
	p.paneUnits = append(p.paneUnits, paneUnit{
		det:     d,
		windows: windowing.NewGlobalWindows(interval),
	})
}

// AddSessionDetector registers a detector fed from session windows with the
// given inactivity gap. keyFn extracts the session key from an event;
// returning false skips the event for this detector.
func (p *Pipeline) AddSessionDetector(d detector.SessionDetector, gap time.Duration, keyFn func(event.Event) (string, bool)) {
	p.sessionUnits = append(p.sessionUnits, sessionUnit{
		det:     d,
		windows: windowing.NewSessionWindows(gap, keyFn),
	})
}

// Process feeds one event to every detector's windowing stage and runs any
// panes or sessions the advancing watermark closed.
func (p *Pipeline) Process(ctx context.Context, e event.Event) error {
	metrics.EventsTotal.Inc()
	for i := range p.paneUnits {
		u := &p.paneUnits[i]
		before := u.windows.DroppedLate()
		for _, pane := range u.windows.Add(e) {
			if err := p.runPane(ctx, u.det, pane); err != nil {
				return err
			}
		}
		if d := u.windows.DroppedLate() - before; d > 0 {
			metrics.EventsLate.Add(float64(d))
			p.log.Debug("late event dropped", logging.Detector(u.det.Name()))
		}
	}
	for i := range p.sessionUnits {
		u := &p.sessionUnits[i]
		for _, s := range u.windows.Add(e) {
			if err := p.runSession(ctx, u.det, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drain fires every open window at end-of-stream and flushes the results.
func (p *Pipeline) Drain(ctx context.Context) error {
	for i := range p.paneUnits {
		u := &p.paneUnits[i]
		for _, pane := range u.windows.Close() {
			if err := p.runPane(ctx, u.det, pane); err != nil {
				return err
			}
		}
	}
	for i := range p.sessionUnits {
		u := &p.sessionUnits[i]
		for _, s := range u.windows.Close() {
			if err := p.runSession(ctx, u.det, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) runPane(ctx context.Context, d detector.PaneDetector, pane windowing.Pane) error {
	metrics.PanesTotal.WithLabelValues(d.Name()).Inc()
	p.log.Debug("processing pane",
		logging.Detector(d.Name()), logging.Pane(pane.Index), logging.Count(len(pane.Events)))
	alerts, err := d.ProcessPane(ctx, pane)
	if err != nil {
		p.recordFailure(d.Name(), err)
		p.log.Error("pane processing failed",
			logging.Detector(d.Name()), logging.Pane(pane.Index), logging.Error(err))
	}
	return p.emitAll(ctx, alerts)
}

func (p *Pipeline) runSession(ctx context.Context, d detector.SessionDetector, s windowing.Session) error {
	metrics.PanesTotal.WithLabelValues(d.Name()).Inc()
	p.log.Debug("processing session",
		logging.Detector(d.Name()), logging.Key(s.Key), logging.Count(len(s.Events)))
	alerts, err := d.ProcessSession(ctx, s)
	if err != nil {
		p.recordFailure(d.Name(), err)
		p.log.Error("session processing failed",
			logging.Detector(d.Name()), logging.Key(s.Key), logging.Error(err))
	}
	return p.emitAll(ctx, alerts)
}

// recordFailure counts a failed evaluation. Failures are surfaced through
// logs and metrics and the engine keeps running; a failed pane means fewer
// alerts, never wrong alerts.
func (p *Pipeline) recordFailure(name string, err error) {
	metrics.DetectorErrors.WithLabelValues(name).Inc()
	if state.IsStateError(err) {
		metrics.StateErrors.Inc()
	}
}

func (p *Pipeline) emitAll(ctx context.Context, alerts []*alert.Alert) error {
	for _, a := range alerts {
		if !p.suppressor.Keep(a) {
			metrics.AlertsSuppressed.Inc()
			continue
		}
		metrics.AlertsTotal.WithLabelValues(a.Category).Inc()
		if err := p.sink.Emit(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
