package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/config"
	"github.com/telhawk-systems/abusehawk/internal/detector"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

func collector(out *[]*alert.Alert) Sink {
	return SinkFunc(func(ctx context.Context, a *alert.Alert) error {
		*out = append(*out, a)
		return nil
	})
}

func accountCreationConfig() *config.Config {
	return &config.Config{
		MonitoredResource: "test",
		Detectors: config.DetectorsConfig{
			AccountCreation: config.AccountCreationConfig{
				Enabled:              true,
				SessionLimit:         3,
				DistributedThreshold: 5,
				SessionGapMinutes:    30,
			},
		},
		Windowing:   config.WindowingConfig{PaneIntervalSeconds: 60},
		Suppression: config.SuppressConfig{WindowSeconds: 900},
	}
}

func creationEvents(addr string, n int) []event.Event {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Kind:          event.KindAccountCreate,
			SubjectUser:   fmt.Sprintf("user%c@example.com", 'a'+i),
			SourceAddress: addr,
		})
	}
	return events
}

func TestBuildAccountCreationEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	events := creationEvents("216.160.83.56", 6)

	run := func() []*alert.Alert {
		var got []*alert.Alert
		p, err := Build(accountCreationConfig(), store, collector(&got), logging.Default())
		require.NoError(t, err)
		for _, e := range events {
			require.NoError(t, p.Process(ctx, e))
		}
		require.NoError(t, p.Drain(ctx))
		return got
	}

	got := run()
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, alert.CategoryCustoms, a.Category)
	assert.Equal(t, "test suspicious account creation, 216.160.83.56 3", a.Summary)
	assert.Equal(t, "3", a.MetadataValue(alert.MetaCount))

	// Replaying the stream against the unflushed store is a no-op.
	assert.Empty(t, run())

	// After a state flush the replay alerts identically.
	require.NoError(t, store.DeleteAll(ctx))
	again := run()
	require.Len(t, again, 1)
	assert.Equal(t, a.Summary, again[0].Summary)
}

func TestBuildDistributedSupersedesSessionAlerts(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	cfg := accountCreationConfig()
	cfg.Detectors.AccountCreation.DistributedThreshold = 5

	var got []*alert.Alert
	p, err := Build(cfg, store, collector(&got), logging.Default())
	require.NoError(t, err)

	// Five typo variants of one identifier, each from its own address, plus
	// enough repeats from one address to cross the per-session limit too.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(ctx, event.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Kind:          event.KindAccountCreate,
			SubjectUser:   fmt.Sprintf("spam+%d@mail.com", i),
			SourceAddress: fmt.Sprintf("10.0.0.%d", i+1),
		}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(ctx, event.Event{
			Timestamp:     base.Add(time.Duration(5+i) * time.Minute),
			Kind:          event.KindAccountCreate,
			SubjectUser:   fmt.Sprintf("spam+x%d@mail.com", i),
			SourceAddress: "10.0.0.1",
		}))
	}
	require.NoError(t, p.Drain(ctx))

	var summaries []string
	for _, a := range got {
		summaries = append(summaries, a.Summary)
	}
	require.Len(t, got, 1, summaries)
	assert.Equal(t, "test suspicious distributed account creation, 10.0.0.1 8", got[0].Summary)
}

func TestPipelineSuppressesRepeatedAlerts(t *testing.T) {
	ctx := context.Background()
	var got []*alert.Alert
	p := New(collector(&got), alert.NewSuppressor(900*time.Second), logging.Default())
	p.AddPaneDetector(detector.NewErrorRate(detector.ErrorRateConfig{
		Resource:           "test",
		MaxClientErrorRate: 1,
	}, logging.Default()), 60*time.Second)

	base := time.Unix(0, 0).UTC()
	burst := func(start time.Time) {
		for i := 0; i < 3; i++ {
			require.NoError(t, p.Process(ctx, event.Event{
				Timestamp:     start.Add(time.Duration(i) * time.Second),
				Kind:          event.KindHTTPRequest,
				SourceAddress: "10.0.0.1",
				Status:        404,
			}))
		}
	}

	burst(base)
	burst(base.Add(60 * time.Second))
	require.NoError(t, p.Drain(ctx))

	// Both panes trip the detector but the second alert carries the same
	// merge key within the suppression window.
	require.Len(t, got, 1)
	assert.Equal(t, "test httprequest error_rate 10.0.0.1 3", got[0].Summary)
}

type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }

func (failingDetector) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	return nil, errors.New("boom")
}

func TestPipelineKeepsRunningOnDetectorFailure(t *testing.T) {
	ctx := context.Background()
	var got []*alert.Alert
	p := New(collector(&got), alert.NewSuppressor(0), logging.Default())
	p.AddPaneDetector(failingDetector{}, 60*time.Second)
	p.AddPaneDetector(detector.NewErrorRate(detector.ErrorRateConfig{
		Resource:           "test",
		MaxClientErrorRate: 1,
	}, logging.Default()), 60*time.Second)

	base := time.Unix(0, 0).UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(ctx, event.Event{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			Kind:          event.KindHTTPRequest,
			SourceAddress: "10.0.0.1",
			Status:        404,
		}))
	}
	require.NoError(t, p.Drain(ctx))
	require.Len(t, got, 1)
}

func TestNewStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := NewStore(config.StateConfig{Backend: "memory", MaxRetries: 3, OpTimeout: "5s"})
		require.NoError(t, err)
		require.NoError(t, s.Save(context.Background(), "k", []byte("v"), 0))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewStore(config.StateConfig{Backend: "etcd"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "etcd")
	})
}
