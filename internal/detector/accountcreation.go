package detector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/abusehawk/internal/alert"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/windowing"
)

const acctCreateKeyPrefix = "acctcreate:"

// SessionState is the per-coordinating-address account creation record in
// the state store. It is recomputed from the session's events and saved
// whole on each evaluation, so a retried write overwrites rather than
// double-counts. Count never decreases within a session's gap window.
type SessionState struct {
	SessionStart time.Time `json:"session_start"`
	LastSeen     time.Time `json:"last_seen"`
	Count        int64     `json:"count"`
	Emails       []string  `json:"emails"`
	Alerted      bool      `json:"alerted"`
}

// AccountCreationConfig controls the per-session account creation detector.
type AccountCreationConfig struct {
	Resource     string
	SessionLimit int64
	SessionGap   time.Duration
}

// AccountCreation counts account creation events per coordinating address
// within a session window and alerts once the count crosses the session
// limit. The alert reports the count and identifiers at the crossing point,
// not the final session totals. A distributed cluster alert covering the
// address supersedes the per-session alert.
type AccountCreation struct {
	cfg   AccountCreationConfig
	store state.Store
	log   *logging.Logger
}

// NewAccountCreation creates the per-session account creation detector.
func NewAccountCreation(cfg AccountCreationConfig, store state.Store, log *logging.Logger) *AccountCreation {
	return &AccountCreation{cfg: cfg, store: store, log: log.With("detector", "account_creation_abuse")}
}

func (d *AccountCreation) Name() string { return "account_creation_abuse" }

// ProcessSession evaluates one closed session for a coordinating address.
// The session's state record is saved before the alert is emitted, and a
// session that already alerted (a replay without a state flush) is not
// alerted again.
func (d *AccountCreation) ProcessSession(ctx context.Context, s windowing.Session) ([]*alert.Alert, error) {
	var prev SessionState
	found, err := state.GetJSON(ctx, d.store, acctCreateKeyPrefix+s.Key, &prev)
	if err != nil {
		return nil, err
	}
	alreadyAlerted := found && prev.Alerted && prev.SessionStart.Equal(s.Start)

	var (
		count      int64
		emails     []string
		crossed    bool
		crossedAt  time.Time
		crossedIDs []string
	)
	for i := range s.Events {
		e := &s.Events[i]
		if e.SubjectUser == "" {
			d.log.Debug("skipping event", logging.Error(&MalformedEventError{
				Detector: d.Name(), Reason: "creation event without identifier"}))
			continue
		}
		count++
		emails = append(emails, e.SubjectUser)
		if !crossed && count == d.cfg.SessionLimit {
			crossed = true
			crossedAt = e.Timestamp
			crossedIDs = append([]string(nil), emails...)
		}
	}

	next := SessionState{
		SessionStart: s.Start,
		LastSeen:     s.LastSeen,
		Count:        count,
		Emails:       emails,
		Alerted:      alreadyAlerted || crossed,
	}
	if err := state.SaveJSON(ctx, d.store, acctCreateKeyPrefix+s.Key, &next, 2*d.cfg.SessionGap); err != nil {
		return nil, err
	}

	if !crossed || alreadyAlerted {
		return nil, nil
	}

	member, err := d.inAlertedCluster(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	if member {
		d.log.Debug("session alert superseded by distributed cluster", logging.IP(s.Key))
		return nil, nil
	}

	a := alert.New(alert.CategoryCustoms)
	a.Timestamp = crossedAt
	a.Summary = fmt.Sprintf("%s suspicious account creation, %s %d",
		d.cfg.Resource, s.Key, d.cfg.SessionLimit)
	a.AddMetadata(alert.MetaNotifyMerge, string(alert.HeuristicAccountCreationAbuse))
	a.AddMetadata(alert.MetaCustomsCategory, string(alert.HeuristicAccountCreationAbuse))
	a.AddMetadata(alert.MetaSourceAddress, s.Key)
	a.AddMetadata(alert.MetaCount, strconv.FormatInt(d.cfg.SessionLimit, 10))
	a.AddMetadata(alert.MetaEmail, strings.Join(crossedIDs, ", "))
	return []*alert.Alert{a}, nil
}

func (d *AccountCreation) inAlertedCluster(ctx context.Context, addr string) (bool, error) {
	_, found, err := d.store.Get(ctx, distAddrKeyPrefix+addr)
	if err != nil {
		return false, err
	}
	return found, nil
}
