package detector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

const (
	distKeyPrefix     = "acctcreatedist:"
	distAddrKeyPrefix = "acctcreatedistaddr:"
)

// clusterState is the correlation record for one normalized identifier
// cluster. Identifier and address sets are unioned on each update, so a
// replayed pane converges to the same record instead of double-counting.
type clusterState struct {
	Identifiers  []string  `json:"identifiers"`
	Addresses    []string  `json:"addresses"`
	FirstAddress string    `json:"first_address"`
	FirstEmail   string    `json:"first_email"`
	FirstSeen    time.Time `json:"first_seen"`
	Alerted      bool      `json:"alerted"`
}

func (c *clusterState) addIdentifier(id string) {
	for _, have := range c.Identifiers {
		if have == id {
			return
		}
	}
	c.Identifiers = append(c.Identifiers, id)
}

func (c *clusterState) addAddress(addr string) {
	for _, have := range c.Addresses {
		if have == addr {
			return
		}
	}
	c.Addresses = append(c.Addresses, addr)
}

// DistributedAccountCreationConfig controls the cross-address correlation
// detector.
type DistributedAccountCreationConfig struct {
	Resource          string
	Threshold         int64
	CorrelationWindow time.Duration
}

// DistributedAccountCreation correlates account creation events across
// addresses whose identifiers normalize to the same cluster. When a
// cluster's distinct-identifier count reaches the threshold it emits one
// alert anchored on the cluster's earliest address and identifier, then
// marks every member address so the per-session detector does not also
// alert for them within the correlation window.
type DistributedAccountCreation struct {
	cfg       DistributedAccountCreationConfig
	store     state.Store
	normalize IdentifierNormalizer
	log       *logging.Logger
}

// NewDistributedAccountCreation creates the correlation detector. A nil
// normalizer selects NormalizeEmail.
func NewDistributedAccountCreation(cfg DistributedAccountCreationConfig, store state.Store, normalize IdentifierNormalizer, log *logging.Logger) *DistributedAccountCreation {
	if normalize == nil {
		normalize = NormalizeEmail
	}
	return &DistributedAccountCreation{
		cfg:       cfg,
		store:     store,
		normalize: normalize,
		log:       log.With("detector", "account_creation_abuse_distributed"),
	}
}

func (d *DistributedAccountCreation) Name() string { return "account_creation_abuse_distributed" }

// ProcessPane folds the pane's creation events into their clusters' state
// records and alerts on clusters crossing the threshold for the first time.
// Member address markers and the updated cluster record are saved before
// the alert is emitted.
func (d *DistributedAccountCreation) ProcessPane(ctx context.Context, p windowing.Pane) ([]*alert.Alert, error) {
	byCluster := make(map[string][]*event.Event)
	for i := range p.Events {
		e := &p.Events[i]
		if e.Kind != event.KindAccountCreate {
			continue
		}
		if e.SubjectUser == "" {
			d.log.Debug("skipping event", logging.Error(&MalformedEventError{
				Detector: d.Name(), Reason: "creation event without identifier"}))
			continue
		}
		key := d.normalize(e.SubjectUser)
		byCluster[key] = append(byCluster[key], e)
	}

	keys := make([]string, 0, len(byCluster))
	for k := range byCluster {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var alerts []*alert.Alert
	for _, key := range keys {
		events := byCluster[key]

		var cs clusterState
		if _, err := state.GetJSON(ctx, d.store, distKeyPrefix+key, &cs); err != nil {
			return alerts, err
		}
		for _, e := range events {
			if cs.FirstSeen.IsZero() || e.Timestamp.Before(cs.FirstSeen) {
				cs.FirstSeen = e.Timestamp
				cs.FirstAddress = e.SourceAddress
				cs.FirstEmail = e.SubjectUser
			}
			cs.addIdentifier(e.SubjectUser)
			cs.addAddress(e.SourceAddress)
		}

		count := int64(len(cs.Identifiers))
		fire := count >= d.cfg.Threshold && !cs.Alerted
		if fire {
			cs.Alerted = true
			for _, addr := range cs.Addresses {
				if err := d.store.Save(ctx, distAddrKeyPrefix+addr, []byte(key), d.cfg.CorrelationWindow); err != nil {
					return alerts, err
				}
			}
		}
		if err := state.SaveJSON(ctx, d.store, distKeyPrefix+key, &cs, d.cfg.CorrelationWindow); err != nil {
			return alerts, err
		}
		if !fire {
			continue
		}

		var similar []string
		for _, id := range cs.Identifiers {
			if id != cs.FirstEmail {
				similar = append(similar, id)
			}
		}

		a := alert.New(alert.CategoryCustoms)
		a.Timestamp = p.MaxTimestamp()
		a.Summary = fmt.Sprintf("%s suspicious distributed account creation, %s %d",
			d.cfg.Resource, cs.FirstAddress, count)
		a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicAccountCreationAbuseDistributed))
		a.AddMetadata(alert.MetaCustomsCategory, string(alert.HeuristicAccountCreationAbuseDistributed))
		a.AddMetadata(alert.MetaSourceAddress, cs.FirstAddress)
		a.AddMetadata(alert.MetaCount, strconv.FormatInt(count, 10))
		a.AddMetadata(alert.MetaEmail, cs.FirstEmail)
		a.AddMetadata(alert.MetaEmailSimilar, strings.Join(similar, ", "))
		alerts = append(alerts, a)
	}
	return alerts, nil
}
