package windowing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/abusehawk/internal/event"
)

func httpEvent(ts time.Time, addr string) event.Event {
	return event.Event{Timestamp: ts, Kind: event.KindHTTPRequest, SourceAddress: addr}
}

func TestGlobalWindowsFiresOnWatermarkAdvance(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	assert.Empty(t, w.Add(httpEvent(epoch.Add(10*time.Second), "10.0.0.1")))
	assert.Empty(t, w.Add(httpEvent(epoch.Add(30*time.Second), "10.0.0.1")))

	// Crossing into the second window fires the first.
	panes := w.Add(httpEvent(epoch.Add(70*time.Second), "10.0.0.2"))
	require.Len(t, panes, 1)
	assert.Equal(t, epoch, panes[0].Start)
	assert.Equal(t, epoch.Add(60*time.Second), panes[0].End)
	assert.Equal(t, 0, panes[0].Index)
	assert.Len(t, panes[0].Events, 2)

	panes = w.Close()
	require.Len(t, panes, 1)
	assert.Equal(t, 1, panes[0].Index)
	assert.Len(t, panes[0].Events, 1)
}

func TestGlobalWindowsPaneMaxTimestamp(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	w.Add(httpEvent(epoch.Add(59*time.Second), "10.0.0.1"))
	panes := w.Close()
	require.Len(t, panes, 1)

	got := panes[0].MaxTimestamp().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	assert.Equal(t, "1970-01-01T00:00:59.999Z", got)
}

func TestGlobalWindowsDropsLateEvents(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	w.Add(httpEvent(epoch.Add(10*time.Second), "10.0.0.1"))
	panes := w.Add(httpEvent(epoch.Add(120*time.Second), "10.0.0.1"))
	require.Len(t, panes, 1)

	// The first window fired already; an event for it is late.
	assert.Empty(t, w.Add(httpEvent(epoch.Add(20*time.Second), "10.0.0.1")))
	assert.Equal(t, int64(1), w.DroppedLate())

	panes = w.Close()
	require.Len(t, panes, 1)
	assert.Len(t, panes[0].Events, 1)
}

func TestGlobalWindowsPaneIndexIncreasesPerFiring(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	assert.Empty(t, w.Add(httpEvent(epoch.Add(10*time.Second), "10.0.0.1")))

	panes := w.Add(httpEvent(epoch.Add(70*time.Second), "10.0.0.1"))
	require.Len(t, panes, 1)
	assert.Equal(t, 0, panes[0].Index)

	panes = w.Add(httpEvent(epoch.Add(130*time.Second), "10.0.0.1"))
	require.Len(t, panes, 1)
	assert.Equal(t, 1, panes[0].Index)
	assert.Equal(t, epoch.Add(60*time.Second), panes[0].Start)

	panes = w.Close()
	require.Len(t, panes, 1)
	assert.Equal(t, 2, panes[0].Index)
}

func TestGlobalWindowsSortsPaneEvents(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	w.Add(httpEvent(epoch.Add(30*time.Second), "10.0.0.2"))
	w.Add(httpEvent(epoch.Add(10*time.Second), "10.0.0.1"))
	panes := w.Close()
	require.Len(t, panes, 1)
	assert.Equal(t, "10.0.0.1", panes[0].Events[0].SourceAddress)
	assert.Equal(t, "10.0.0.2", panes[0].Events[1].SourceAddress)
}

func TestGlobalWindowsWatermarkNeverRegresses(t *testing.T) {
	w := NewGlobalWindows(60 * time.Second)
	epoch := time.Unix(0, 0).UTC()

	w.Add(httpEvent(epoch.Add(120*time.Second), "10.0.0.1"))
	// An older event within a still-open window is accepted.
	assert.Empty(t, w.AdvanceWatermark(epoch.Add(60*time.Second)))
	assert.Empty(t, w.Add(httpEvent(epoch.Add(130*time.Second), "10.0.0.1")))

	panes := w.Close()
	require.Len(t, panes, 1)
	assert.Len(t, panes[0].Events, 2)
}
