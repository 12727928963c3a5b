package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity of a given alert.
type Severity string

const (
	SeverityInformational Severity = "info"
	SeverityWarning       Severity = "warn"
	SeverityCritical      Severity = "critical"
)

// Metadata key names read by downstream consumers. Insertion order in the
// metadata array is significant and preserved end to end.
const (
	MetaSourceAddress     = "sourceaddress"
	MetaCount             = "count"
	MetaCustomsCategory   = "customs_category"
	MetaNotifyMerge       = "notify_merge"
	MetaEmail             = "email"
	MetaEmailSimilar      = "email_similar"
	MetaUID               = "uid"
	MetaMean              = "mean"
	MetaThresholdModifier = "threshold_modifier"
	MetaWindowTimestamp   = "window_timestamp"
	MetaLoginFailure      = "login_failure"
	MetaErrorCount        = "error_count"
)

// TimestampLayout is the wire format for alert timestamps: ISO-8601 with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Field is a single ordered metadata entry.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Alert is the engine's output record. Alerts are immutable once emitted;
// the suppression layer either passes an alert through unchanged or drops it.
type Alert struct {
	ID        uuid.UUID
	Timestamp time.Time
	Category  string
	Severity  Severity
	Summary   string
	Metadata  []Field
}

// New creates an alert in the given category with a fresh identifier and
// informational severity.
func New(category string) *Alert {
	return &Alert{
		ID:       uuid.New(),
		Category: category,
		Severity: SeverityInformational,
	}
}

// AddMetadata appends a metadata entry, preserving insertion order.
func (a *Alert) AddMetadata(key, value string) {
	a.Metadata = append(a.Metadata, Field{Key: key, Value: value})
}

// MetadataValue returns the value for the first metadata entry with the given
// key, or the empty string if absent.
func (a *Alert) MetadataValue(key string) string {
	for _, f := range a.Metadata {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

type wireAlert struct {
	Severity  Severity  `json:"severity"`
	ID        uuid.UUID `json:"id"`
	Summary   string    `json:"summary"`
	Category  string    `json:"category"`
	Timestamp string    `json:"timestamp"`
	Metadata  []Field   `json:"metadata"`
}

// MarshalJSON serializes the alert in the notification wire format.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAlert{
		Severity:  a.Severity,
		ID:        a.ID,
		Summary:   a.Summary,
		Category:  a.Category,
		Timestamp: a.Timestamp.UTC().Format(TimestampLayout),
		Metadata:  a.Metadata,
	})
}

// UnmarshalJSON decodes an alert from the notification wire format.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to decode alert: %w", err)
	}
	ts, err := time.Parse(TimestampLayout, w.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid alert timestamp: %w", err)
	}
	a.ID = w.ID
	a.Severity = w.Severity
	a.Summary = w.Summary
	a.Category = w.Category
	a.Timestamp = ts
	a.Metadata = w.Metadata
	return nil
}
