package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/event"
)

func requestEvent(ts time.Time, addr string, status int) event.Event {
	return event.Event{
		Timestamp:     ts,
		Kind:          event.KindHTTPRequest,
		SourceAddress: addr,
		Status:        status,
	}
}

func TestErrorRateOverMaximum(t *testing.T) {
	d := NewErrorRate(ErrorRateConfig{Resource: "test", MaxClientErrorRate: 3}, testLog())
	interval := 60 * time.Second
	start := time.Unix(0, 0).UTC()

	var events []event.Event
	for i := 0; i < 4; i++ {
		events = append(events, requestEvent(start.Add(time.Duration(i)*time.Second), "10.0.0.1", 404))
	}
	// Successes and server errors do not count against the client error rate.
	events = append(events,
		requestEvent(start.Add(10*time.Second), "10.0.0.1", 200),
		requestEvent(start.Add(11*time.Second), "10.0.0.1", 500),
	)
	// A second source at the maximum but not over it.
	for i := 0; i < 3; i++ {
		events = append(events, requestEvent(start.Add(time.Duration(20+i)*time.Second), "10.0.0.2", 403))
	}

	alerts, err := d.ProcessPane(context.Background(), paneAt(0, interval, events))
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, alert.CategoryHTTPRequest, a.Category)
	assert.Equal(t, "test httprequest error_rate 10.0.0.1 4", a.Summary)
	assert.Equal(t, "10.0.0.1", a.MetadataValue(alert.MetaSourceAddress))
	assert.Equal(t, "4", a.MetadataValue(alert.MetaErrorCount))
	assert.Equal(t, "1970-01-01T00:00:59.999Z", a.MetadataValue(alert.MetaWindowTimestamp))
}

func TestErrorRateMultipleSourcesSortedBySource(t *testing.T) {
	d := NewErrorRate(ErrorRateConfig{Resource: "test", MaxClientErrorRate: 1}, testLog())
	interval := 60 * time.Second
	start := time.Unix(0, 0).UTC()

	var events []event.Event
	for _, addr := range []string{"10.0.0.9", "10.0.0.1"} {
		for i := 0; i < 2; i++ {
			events = append(events, requestEvent(start.Add(time.Duration(i)*time.Second), addr, 404))
		}
	}

	alerts, err := d.ProcessPane(context.Background(), paneAt(0, interval, events))
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "10.0.0.1", alerts[0].MetadataValue(alert.MetaSourceAddress))
	assert.Equal(t, "10.0.0.9", alerts[1].MetadataValue(alert.MetaSourceAddress))
}

func TestErrorRateStatelessAcrossPanes(t *testing.T) {
	d := NewErrorRate(ErrorRateConfig{Resource: "test", MaxClientErrorRate: 3}, testLog())
	interval := 60 * time.Second

	pane := func(idx int, n int) []event.Event {
		start := time.Unix(int64(idx)*60, 0).UTC()
		var events []event.Event
		for i := 0; i < n; i++ {
			events = append(events, requestEvent(start.Add(time.Duration(i)*time.Second), "10.0.0.1", 404))
		}
		return events
	}

	// Two errors per pane never trip a per-pane maximum of three, no matter
	// how many panes accumulate.
	for idx := 0; idx < 5; idx++ {
		alerts, err := d.ProcessPane(context.Background(), paneAt(idx, interval, pane(idx, 2)))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}
}
