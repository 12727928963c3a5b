// Package detector implements the stateful abuse heuristics. Each detector
// consumes fired windows from the windowing layer, carries per-key memory in
// the state store, and emits alerts. Within a pane a detector's output is
// independent of event arrival order; all aggregation is by event timestamp
// and commutative counting.
package detector

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

// PaneDetector evaluates one fired pane of a global window.
type PaneDetector interface {
	Name() string
	ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error)
}

// SessionDetector evaluates one closed session window.
type SessionDetector interface {
	Name() string
	ProcessSession(ctx context.Context, s windowing.Session) ([]*alert.Alert, error)
}

// MalformedEventError marks an event missing an attribute the named detector
// requires. The event is skipped by that detector only.
type MalformedEventError struct {
	Detector string
	Reason   string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("%s: malformed event: %s", e.Detector, e.Reason)
}
