package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

const (
	velocityKeyPrefix = "velocity:"
	earthRadiusKm     = 6378.0
)

// Observation is the most recent geo-tagged event for an identity, carried
// in the state store between events.
type Observation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// VelocityConfig controls the velocity detector.
type VelocityConfig struct {
	MaxKilometersPerSecond float64
}

// Velocity flags identities whose consecutive geo-tagged events imply a
// physically implausible travel speed.
type Velocity struct {
	cfg   VelocityConfig
	store state.Store
	log   *logging.Logger
}

// NewVelocity creates the velocity detector.
func NewVelocity(cfg VelocityConfig, store state.Store, log *logging.Logger) *Velocity {
	return &Velocity{cfg: cfg, store: store, log: log.With("detector", "velocity")}
}

func (d *Velocity) Name() string { return "velocity" }

// ProcessPane walks the pane's geo-tagged events in timestamp order. For
// each identity the previous observation is compared against the new one;
// the stored observation then advances to the new point whether or not an
// alert fired. The first observation for an identity never alerts.
func (d *Velocity) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	var alerts []*alert.Alert
	for i := range p.Events {
		e := &p.Events[i]
		if !e.HasGeo() {
			continue
		}
		identity := e.Identity()
		if identity == "" {
			d.log.Debug("skipping event", logging.Error(&MalformedEventError{
				Detector: d.Name(), Reason: "geo event without identity"}))
			continue
		}

		cur := Observation{Latitude: *e.Latitude, Longitude: *e.Longitude, Timestamp: e.Timestamp}
		var prev Observation
		found, err := state.GetJSON(ctx, d.store, velocityKeyPrefix+identity, &prev)
		if err != nil {
			return alerts, err
		}
		if err := state.SaveJSON(ctx, d.store, velocityKeyPrefix+identity, &cur, 0); err != nil {
			return alerts, err
		}
		if !found {
			continue
		}

		km := roundKm(haversineKm(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude))
		if km == 0 {
			continue
		}
		secs := int64(cur.Timestamp.Sub(prev.Timestamp) / time.Second)
		if secs > 0 && km/float64(secs) <= d.cfg.MaxKilometersPerSecond {
			continue
		}

		a := alert.New(alert.CategoryCustoms)
		a.Timestamp = e.Timestamp
		a.Summary = fmt.Sprintf("%s velocity exceeded, %.2f km in %d seconds", identity, km, secs)
		a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicVelocity))
		a.AddMetadata(alert.MetaCustomsCategory, string(alert.HeuristicVelocity))
		a.AddMetadata(alert.MetaSourceAddress, e.SourceAddress)
		a.AddMetadata(alert.MetaUID, e.UID)
		a.AddMetadata(alert.MetaEmail, e.SubjectUser)
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// haversineKm returns the great-circle distance between two points in
// kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
