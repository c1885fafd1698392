package types

import "time"

// EntryOutcome is the per-candidate result of an entry stage.
type EntryOutcome struct {
	Symbol   string       `json:"symbol"`
	Strategy string       `json:"strategy"`
	Status   string       `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Order    *OrderResult `json:"order,omitempty"`
}

const (
	EntryStatusEntered     = "entered"
	EntryStatusSkipped     = "skipped"
	EntryStatusUnconfirmed = "unconfirmed"
	EntryStatusRejected    = "rejected"
	EntryStatusFailed      = "failed"
)

// EntryReport is the persisted output of one entry stage.
type EntryReport struct {
	SchemaVersion string         `json:"schema_version"`
	Timestamp     time.Time      `json:"timestamp"`
	TradeDate     string         `json:"trade_date"`
	Group         EntryGroup     `json:"group"`
	Outcomes      []EntryOutcome `json:"outcomes"`
}

// Entered returns the number of candidates that became positions.
func (r EntryReport) Entered() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Status == EntryStatusEntered {
			n++
		}
	}

	return n
}
