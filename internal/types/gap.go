package types

import "time"

// GapAction is the gap filter verdict for a candidate.
type GapAction string

const (
	GapActionKeep GapAction = "keep"
	GapActionDrop GapAction = "drop"
)

const (
	GapReasonWithinThreshold  = "within_threshold"
	GapReasonTooLarge         = "gap_too_large"
	GapReasonPriceUnavailable = "price_unavailable"
)

// GapDecision records why a candidate was kept or dropped before the open.
type GapDecision struct {
	Symbol string    `json:"symbol"`
	Action GapAction `json:"action"`
	Reason string    `json:"reason"`
	// Price and GapPct are nil when no pre-open price was available.
	Price  *float64 `json:"price"`
	GapPct *float64 `json:"gap_pct"`
}

// GapFilterResult is the persisted output of the pre-market filter.
type GapFilterResult struct {
	SchemaVersion string        `json:"schema_version"`
	Timestamp     time.Time     `json:"timestamp"`
	TradeDate     string        `json:"trade_date"`
	ThresholdPct  float64       `json:"threshold_pct"`
	Kept          []Candidate   `json:"kept"`
	Decisions     []GapDecision `json:"decisions"`
}
