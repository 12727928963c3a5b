package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldDetector = "detector"
	FieldKey      = "key"
	FieldIP       = "ip"
	FieldCategory = "category"
	FieldPane     = "pane"
	FieldCount    = "count"
	FieldError    = "error"
	FieldBackend  = "backend"
)

// Detector returns a slog attribute for a detector name.
func Detector(name string) slog.Attr {
	return slog.String(FieldDetector, name)
}

// Key returns a slog attribute for an entity key.
func Key(key string) slog.Attr {
	return slog.String(FieldKey, key)
}

// IP returns a slog attribute for an IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Category returns a slog attribute for an alert category.
func Category(category string) slog.Attr {
	return slog.String(FieldCategory, category)
}

// Pane returns a slog attribute for a pane index.
func Pane(index int) slog.Attr {
	return slog.Int(FieldPane, index)
}

// Count returns a slog attribute for an event count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Backend returns a slog attribute for a state backend name.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}
