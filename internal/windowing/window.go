// Package windowing groups an unbounded event stream into finite panes for
// detector evaluation. Progress is driven by an event-time watermark: the
// maximum event timestamp observed so far. A window's pane fires once the
// watermark passes its end; events whose window has already fired are late
// and are dropped from aggregation, never partially applied.
package windowing

import (
	"sort"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/event"
)

// Pane is one firing of a window: a finite batch of events sharing the
// window identity [Start, End).
type Pane struct {
	Start  time.Time
	End    time.Time
	Index  int
	Events []event.Event
}

// MaxTimestamp returns the latest instant belonging to the pane's window,
// one millisecond before the exclusive end. This is the instant reported in
// alert metadata.
func (p Pane) MaxTimestamp() time.Time {
	return p.End.Add(-time.Millisecond)
}

// GlobalWindows assigns events to fixed-width windows over an unbounded
// stream and fires a pane per window as the watermark passes its end. Panes
// fire in window order with a monotonically increasing index.
type GlobalWindows struct {
	interval  time.Duration
	buckets   map[int64][]event.Event
	watermark time.Time
	marked    bool
	nextIndex int
	dropped   int64
}

// NewGlobalWindows creates a windowing stage with the given pane interval.
func NewGlobalWindows(interval time.Duration) *GlobalWindows {
	return &GlobalWindows{
		interval: interval,
		buckets:  make(map[int64][]event.Event),
	}
}

func (w *GlobalWindows) bucketOf(t time.Time) int64 {
	ms := t.UnixMilli()
	iv := w.interval.Milliseconds()
	b := ms / iv
	if ms < 0 && ms%iv != 0 {
		b--
	}
	return b
}

func (w *GlobalWindows) bucketEnd(b int64) time.Time {
	return time.UnixMilli((b + 1) * w.interval.Milliseconds()).UTC()
}

// Add assigns the event to its window and returns any panes whose windows
// the advanced watermark has closed. A late event (its window end is at or
// before the current watermark) is dropped and counted.
func (w *GlobalWindows) Add(e event.Event) []Pane {
	b := w.bucketOf(e.Timestamp)
	if w.marked && !w.bucketEnd(b).After(w.watermark) {
		w.dropped++
		return nil
	}
	w.buckets[b] = append(w.buckets[b], e)
	return w.AdvanceWatermark(e.Timestamp)
}

// AdvanceWatermark moves the watermark forward to t (the watermark never
// regresses) and fires all windows whose end is at or before it.
func (w *GlobalWindows) AdvanceWatermark(t time.Time) []Pane {
	if !w.marked || t.After(w.watermark) {
		w.watermark = t
		w.marked = true
	}
	return w.fire(func(b int64) bool {
		return !w.bucketEnd(b).After(w.watermark)
	})
}

// Close fires every remaining window, used when the watermark passes
// end-of-stream.
func (w *GlobalWindows) Close() []Pane {
	return w.fire(func(int64) bool { return true })
}

// DroppedLate returns the number of late events dropped so far.
func (w *GlobalWindows) DroppedLate() int64 {
	return w.dropped
}

func (w *GlobalWindows) fire(ready func(b int64) bool) []Pane {
	var due []int64
	for b := range w.buckets {
		if ready(b) {
			due = append(due, b)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	panes := make([]Pane, 0, len(due))
	for _, b := range due {
		events := w.buckets[b]
		delete(w.buckets, b)
		event.SortByTimestamp(events)
		panes = append(panes, Pane{
			Start:  w.bucketEnd(b).Add(-w.interval),
			End:    w.bucketEnd(b),
			Index:  w.nextIndex,
			Events: events,
		})
		w.nextIndex++
	}
	return panes
}
