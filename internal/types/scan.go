package types

import "time"

// ScanResult is one strategy signal found by the nightly scan.
type ScanResult struct {
	Symbol     string            `json:"symbol"`
	Strategy   string            `json:"strategy"`
	Direction  Direction         `json:"direction"`
	Strength   float64           `json:"strength"`
	PrevClose  float64           `json:"prev_close"`
	ATR        float64           `json:"atr"`
	Volume     float64           `json:"volume"`
	Indicators IndicatorValues   `json:"indicators,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Candidate is a ranked scan result carrying everything needed to enter and
// later manage the trade.
type Candidate struct {
	Symbol        string            `json:"symbol"`
	Strategy      string            `json:"strategy"`
	Direction     Direction         `json:"direction"`
	EntryGroup    EntryGroup        `json:"entry_group"`
	Group         string            `json:"group"`
	PrevClose     float64           `json:"prev_close"`
	ATR           float64           `json:"atr"`
	StopATRMult   float64           `json:"stop_atr_mult"`
	TargetATRMult float64           `json:"target_atr_mult"`
	MaxHoldDays   int               `json:"max_hold_days"`
	Score         float64           `json:"score"`
	Rank          int               `json:"rank"`
	Indicators    IndicatorValues   `json:"indicators,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ScanMetadata describes how a batch result was produced.
type ScanMetadata struct {
	RunID           string   `json:"run_id"`
	DurationSeconds float64  `json:"duration_seconds"`
	Attempts        int      `json:"attempts"`
	ErrorCount      int      `json:"error_count"`
	FailedSymbols   []string `json:"failed_symbols,omitempty"`
	// Stale is set when the scan failed and a previous result was carried forward.
	Stale       bool   `json:"stale"`
	StaleSource string `json:"stale_source,omitempty"`
}

// BatchResult is the persisted output of one nightly scan.
type BatchResult struct {
	SchemaVersion string       `json:"schema_version"`
	Timestamp     time.Time    `json:"timestamp"`
	ScanDate      string       `json:"scan_date"`
	TradeDate     string       `json:"trade_date"`
	Regime        Regime       `json:"regime"`
	UniverseSize  int          `json:"universe_size"`
	SignalCount   int          `json:"signal_count"`
	Candidates    []Candidate  `json:"candidates"`
	ScanResults   []ScanResult `json:"scan_results"`
	// Indicators holds the scan's indicator values for symbols held at scan time.
	Indicators map[string]IndicatorValues `json:"indicators,omitempty"`
	Metadata   ScanMetadata               `json:"metadata"`
}

// CandidatesFor returns the candidates of the given entry group in rank order.
func (b BatchResult) CandidatesFor(group EntryGroup) []Candidate {
	return FilterByEntryGroup(b.Candidates, group)
}

// FilterByEntryGroup keeps candidates of a single entry group, preserving order.
func FilterByEntryGroup(candidates []Candidate, group EntryGroup) []Candidate {
	out := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.EntryGroup == group {
			out = append(out, c)
		}
	}

	return out
}
