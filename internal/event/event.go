package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind identifies the class of a normalized security event.
type Kind string

const (
	KindAuthSuccess   Kind = "auth_success"
	KindAuthFailure   Kind = "auth_failure"
	KindAccountCreate Kind = "account_create"
	KindHTTPRequest   Kind = "http_request"
)

// IsValid checks if the event kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindAuthSuccess, KindAuthFailure, KindAccountCreate, KindHTTPRequest:
		return true
	default:
		return false
	}
}

// Event is a normalized security event as produced by upstream parsing and
// enrichment. The engine treats it as read-only; detectors that need an
// attribute the event does not carry skip the event rather than failing the
// pane.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Kind          Kind      `json:"kind"`
	SubjectUser   string    `json:"subject_user,omitempty"`
	UID           string    `json:"uid,omitempty"`
	SourceAddress string    `json:"source_address,omitempty"`
	XForwardedFor []string  `json:"x_forwarded_for,omitempty"`

	// Geo enrichment, present only when upstream lookup succeeded.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// HTTP request attributes.
	RequestPath string `json:"request_path,omitempty"`
	Status      int    `json:"status,omitempty"`

	// Backend error identifier for authentication failures.
	ErrorCode string `json:"error_code,omitempty"`
}

// HasGeo reports whether the event carries geolocation coordinates.
func (e *Event) HasGeo() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Identity returns the stable identity key for the event subject, preferring
// the account UID over the login identifier.
func (e *Event) Identity() string {
	if e.UID != "" {
		return e.UID
	}
	return e.SubjectUser
}

// IsClientError reports whether the event is an HTTP request with a 4xx
// response status.
func (e *Event) IsClientError() bool {
	return e.Kind == KindHTTPRequest && e.Status >= 400 && e.Status < 500
}

// Parse decodes a single normalized event from its JSON representation.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("event is missing a timestamp")
	}
	if !ev.Kind.IsValid() {
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}

// SortByTimestamp orders events by event time, breaking ties by subject then
// source address so aggregation output does not depend on arrival order.
func SortByTimestamp(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.SubjectUser != b.SubjectUser {
			return a.SubjectUser < b.SubjectUser
		}
		return a.SourceAddress < b.SourceAddress
	})
}
