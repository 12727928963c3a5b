package alert

import (
	"sync"
	"time"
)

// KeyFunc derives the suppression key for an alert. The second return value
// is false when the alert is not suppressible and must always pass through.
type KeyFunc func(a *Alert) (string, bool)

// DefaultKey groups alerts by their notify_merge value scoped to the entity
// the alert is anchored on. Alerts without notify_merge metadata (summary
// rollups) are never suppressed.
func DefaultKey(a *Alert) (string, bool) {
	merge := a.MetadataValue(MetaNotifyMerge)
	if merge == "" {
		return "", false
	}
	anchor := a.MetadataValue(MetaSourceAddress)
	if anchor == "" {
		anchor = a.MetadataValue(MetaUID)
	}
	if anchor == "" {
		anchor = a.MetadataValue(MetaEmail)
	}
	return merge + "/" + anchor, true
}

// Suppressor collapses repeated alerts sharing a suppression key. The first
// alert for a key passes; later alerts within the window of the last
// passed-through alert are dropped. The window is a sliding deadline in event
// time: each pass-through resets the deadline, dropped alerts do not.
type Suppressor struct {
	window time.Duration
	keyFn  KeyFunc

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSuppressor creates a suppressor with the given trailing window.
func NewSuppressor(window time.Duration) *Suppressor {
	return &Suppressor{
		window: window,
		keyFn:  DefaultKey,
		last:   make(map[string]time.Time),
	}
}

// WithKeyFunc replaces the suppression key derivation.
func (s *Suppressor) WithKeyFunc(fn KeyFunc) *Suppressor {
	s.keyFn = fn
	return s
}

// Keep reports whether the alert should be emitted. A false return means the
// alert is a duplicate within the suppression window and must be dropped.
func (s *Suppressor) Keep(a *Alert) bool {
	if s == nil || s.window <= 0 {
		return true
	}
	key, ok := s.keyFn(a)
	if !ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, seen := s.last[key]; seen && a.Timestamp.Sub(prev) <= s.window {
		return false
	}
	s.last[key] = a.Timestamp
	return true
}

// Reset clears all suppression state.
func (s *Suppressor) Reset() {
	s.mu.Lock()
	s.last = make(map[string]time.Time)
	s.mu.Unlock()
}
