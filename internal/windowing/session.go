package windowing

import (
	"sort"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/event"
)

// Session is a per-key burst of activity delimited by a gap of inactivity.
type Session struct {
	Key      string
	Start    time.Time
	LastSeen time.Time
	Events   []event.Event
}

// SessionWindows groups events into per-key sessions. A session closes when
// the watermark advances at least the gap duration past its last event.
type SessionWindows struct {
	gap       time.Duration
	keyFn     func(event.Event) (string, bool)
	open      map[string]*Session
	watermark time.Time
	marked    bool
	dropped   int64
}

// NewSessionWindows creates session windowing with the given inactivity gap.
// keyFn extracts the session key from an event; returning false skips the
// event entirely.
func NewSessionWindows(gap time.Duration, keyFn func(event.Event) (string, bool)) *SessionWindows {
	return &SessionWindows{
		gap:   gap,
		keyFn: keyFn,
		open:  make(map[string]*Session),
	}
}

// Add assigns the event to its key's open session, starting a new one if
// none is open, and returns any sessions the advanced watermark has closed.
// An event older than the watermark by more than the gap is late and is
// dropped.
func (w *SessionWindows) Add(e event.Event) []Session {
	key, ok := w.keyFn(e)
	if !ok {
		return nil
	}
	if w.marked && e.Timestamp.Add(w.gap).Before(w.watermark) {
		w.dropped++
		return nil
	}
	var closed []Session
	s, ok := w.open[key]
	if ok && e.Timestamp.Sub(s.LastSeen) > w.gap {
		// The gap elapsed for this key; finalize the old session and let
		// the event start a new one.
		delete(w.open, key)
		event.SortByTimestamp(s.Events)
		closed = append(closed, *s)
		ok = false
	}
	if !ok {
		s = &Session{Key: key, Start: e.Timestamp, LastSeen: e.Timestamp}
		w.open[key] = s
	}
	if e.Timestamp.Before(s.Start) {
		s.Start = e.Timestamp
	}
	if e.Timestamp.After(s.LastSeen) {
		s.LastSeen = e.Timestamp
	}
	s.Events = append(s.Events, e)
	return append(closed, w.AdvanceWatermark(e.Timestamp)...)
}

// AdvanceWatermark moves the watermark forward to t and closes every session
// whose inactivity gap has elapsed.
func (w *SessionWindows) AdvanceWatermark(t time.Time) []Session {
	if !w.marked || t.After(w.watermark) {
		w.watermark = t
		w.marked = true
	}
	return w.close(func(s *Session) bool {
		return !s.LastSeen.Add(w.gap).After(w.watermark)
	})
}

// Close flushes all open sessions at end-of-stream.
func (w *SessionWindows) Close() []Session {
	return w.close(func(*Session) bool { return true })
}

// DroppedLate returns the number of late events dropped so far.
func (w *SessionWindows) DroppedLate() int64 {
	return w.dropped
}

func (w *SessionWindows) close(done func(*Session) bool) []Session {
	var closed []Session
	for key, s := range w.open {
		if done(s) {
			delete(w.open, key)
			event.SortByTimestamp(s.Events)
			closed = append(closed, *s)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		if !closed[i].Start.Equal(closed[j].Start) {
			return closed[i].Start.Before(closed[j].Start)
		}
		return closed[i].Key < closed[j].Key
	})
	return closed
}
