package alert

// Alert categories on the wire.
const (
	CategoryCustoms     = "customs"
	CategoryHTTPRequest = "httprequest"
)

// HeuristicCategory identifies the detector outcome an alert reports. It is
// carried in the customs_category metadata field so downstream consumers can
// branch on it without string guessing.
type HeuristicCategory string

const (
	HeuristicAccountCreationAbuse            HeuristicCategory = "account_creation_abuse"
	HeuristicAccountCreationAbuseDistributed HeuristicCategory = "account_creation_abuse_distributed"
	HeuristicSourceLoginFailure              HeuristicCategory = "source_login_failure"
	HeuristicVelocity                        HeuristicCategory = "velocity"
	HeuristicThresholdAnalysis               HeuristicCategory = "threshold_analysis"
	HeuristicErrorRate                       HeuristicCategory = "error_rate"
	HeuristicSummary                         HeuristicCategory = "summary"
	HeuristicUnknown                         HeuristicCategory = ""
)

// ParseHeuristic maps a customs_category metadata value to a known heuristic,
// returning HeuristicUnknown for anything unrecognized.
func ParseHeuristic(s string) HeuristicCategory {
	switch HeuristicCategory(s) {
	case HeuristicAccountCreationAbuse,
		HeuristicAccountCreationAbuseDistributed,
		HeuristicSourceLoginFailure,
		HeuristicVelocity,
		HeuristicThresholdAnalysis,
		HeuristicErrorRate,
		HeuristicSummary:
		return HeuristicCategory(s)
	default:
		return HeuristicUnknown
	}
}

// heuristicDescriptions maps each heuristic to its human description. Built
// once, read-only after init.
var heuristicDescriptions = map[HeuristicCategory]string{
	HeuristicAccountCreationAbuse:            "Large number of accounts created in one session from a single IP address",
	HeuristicAccountCreationAbuseDistributed: "Large number of very similar accounts created in fixed time frame from different addresses",
	HeuristicSourceLoginFailure:              "Large number of login failures from a single IP address in fixed time frame",
	HeuristicVelocity:                        "Account authenticated from locations implying implausible travel speed",
	HeuristicThresholdAnalysis:               "Request count for a client exceeded the established baseline",
	HeuristicErrorRate:                       "Client error rate for a client exceeded the configured maximum",
	HeuristicSummary:                         "Periodic rollup of observed activity for the reporting period",
}

// Description returns the human description for the heuristic, or "unknown".
func (h HeuristicCategory) Description() string {
	if d, ok := heuristicDescriptions[h]; ok {
		return d
	}
	return "unknown"
}

// Action is the suggested downstream response for an alert.
type Action string

const (
	ActionReport  Action = "report"
	ActionSuspect Action = "suspect"
	ActionUnknown Action = "unknown"
)

// SuggestedAction maps a heuristic to the downstream action hint. Unknown
// heuristics get an explicit unknown action rather than a silent default.
func (h HeuristicCategory) SuggestedAction() Action {
	switch h {
	case HeuristicAccountCreationAbuse,
		HeuristicAccountCreationAbuseDistributed,
		HeuristicSourceLoginFailure,
		HeuristicVelocity:
		return ActionSuspect
	case HeuristicThresholdAnalysis, HeuristicErrorRate, HeuristicSummary:
		return ActionReport
	default:
		return ActionUnknown
	}
}
