package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// HeldPosition is an open position under live monitoring.
type HeldPosition struct {
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	EntryDate  string    `json:"entry_date"`
	EntryTime  time.Time `json:"entry_time"`
	Quantity   float64   `json:"quantity"`
	StopPrice  float64   `json:"stop_price"`
	// StopReason names the rule that last set StopPrice. Empty means the initial stop loss.
	StopReason    string  `json:"stop_reason,omitempty"`
	TargetPrice   float64 `json:"target_price"`
	StopATRMult   float64 `json:"stop_atr_mult"`
	TargetATRMult float64 `json:"target_atr_mult"`
	ATR           float64 `json:"atr"`
	MaxHoldDays   int     `json:"max_hold_days"`
	BarsHeld      int     `json:"bars_held"`
	HighestPrice  float64 `json:"highest_price"`
	LowestPrice   float64 `json:"lowest_price"`
	EntryDay      bool    `json:"entry_day"`
	EntryOrderID  string  `json:"entry_order_id,omitempty"`
	// EntryIndicators is the indicator snapshot at entry, used by the regime guard.
	EntryIndicators IndicatorValues `json:"entry_indicators,omitempty"`
	// Adopted marks positions found at the broker without a local record.
	Adopted    bool      `json:"adopted"`
	LastPrice  float64   `json:"last_price"`
	LastUpdate time.Time `json:"last_update"`
	// ExitAttempts counts exit orders that ended without closing the whole
	// position. The next exit order is keyed on it.
	ExitAttempts int `json:"exit_attempts,omitempty"`
}

// NewHeldPosition builds a position from a filled entry. Stop and target are
// derived from the fill price, never from the signal's previous close.
func NewHeldPosition(c Candidate, fillPrice, quantity float64, orderID, entryDate string, at time.Time) HeldPosition {
	stop, target := ProtectiveLevels(c.Direction, fillPrice, c.ATR, c.StopATRMult, c.TargetATRMult)

	return HeldPosition{
		Symbol:          c.Symbol,
		Strategy:        c.Strategy,
		Direction:       c.Direction,
		EntryPrice:      fillPrice,
		EntryDate:       entryDate,
		EntryTime:       at,
		Quantity:        quantity,
		StopPrice:       stop,
		StopReason:      ExitReasonStopLoss,
		TargetPrice:     target,
		StopATRMult:     c.StopATRMult,
		TargetATRMult:   c.TargetATRMult,
		ATR:             c.ATR,
		MaxHoldDays:     c.MaxHoldDays,
		BarsHeld:        0,
		HighestPrice:    fillPrice,
		LowestPrice:     fillPrice,
		EntryDay:        true,
		EntryOrderID:    orderID,
		EntryIndicators: c.Indicators.Clone(),
		Adopted:         false,
		LastPrice:       fillPrice,
		LastUpdate:      at,
		ExitAttempts:    0,
	}
}

// ProtectiveLevels computes stop and target from an entry price and ATR.
func ProtectiveLevels(direction Direction, entry, atr, stopMult, targetMult float64) (stop, target float64) {
	sign := direction.Sign()
	stop = entry - sign*stopMult*atr
	target = entry + sign*targetMult*atr

	return stop, target
}

// UnrealizedPnL returns profit per share at price, signed by direction.
func (p HeldPosition) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Direction.Sign()
}

// LossFraction returns the fractional loss at price. Gains return a negative value.
func (p HeldPosition) LossFraction(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}

	return -p.UnrealizedPnL(price) / p.EntryPrice
}

// FavorableExcursion is the best per-share move in the trade's favor so far.
func (p HeldPosition) FavorableExcursion() float64 {
	if p.Direction == DirectionShort {
		return math.Max(0, p.EntryPrice-p.LowestPrice)
	}

	return math.Max(0, p.HighestPrice-p.EntryPrice)
}

// AdverseExcursion is the worst per-share move against the trade so far.
func (p HeldPosition) AdverseExcursion() float64 {
	if p.Direction == DirectionShort {
		return math.Max(0, p.HighestPrice-p.EntryPrice)
	}

	return math.Max(0, p.EntryPrice-p.LowestPrice)
}

// OpenRisk is the amount lost if the current stop is hit.
func (p HeldPosition) OpenRisk() float64 {
	return math.Max(0, math.Abs(p.EntryPrice-p.StopPrice)*p.Quantity)
}

// Observe folds a new price into the extrema and last price.
func (p *HeldPosition) Observe(price float64, at time.Time) {
	if price > p.HighestPrice || p.HighestPrice == 0 {
		p.HighestPrice = price
	}

	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}

	p.LastPrice = price
	p.LastUpdate = at
}

// IsTighterStop reports whether candidate reduces risk compared with the current stop.
func (p HeldPosition) IsTighterStop(candidate float64) bool {
	if p.Direction == DirectionShort {
		return candidate < p.StopPrice
	}

	return candidate > p.StopPrice
}

// TightenStop moves the stop to candidate when that reduces risk. A looser
// candidate is ignored.
func (p *HeldPosition) TightenStop(candidate float64, reason string) bool {
	if !p.IsTighterStop(candidate) {
		return false
	}

	p.StopPrice = candidate
	p.StopReason = reason

	return true
}

// StopExitReason is the exit reason reported when the current stop is crossed.
func (p HeldPosition) StopExitReason() string {
	if p.StopReason == "" {
		return ExitReasonStopLoss
	}

	return p.StopReason
}

// PositionSnapshot is a held position plus its live excursion figures.
type PositionSnapshot struct {
	HeldPosition
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MFE           float64 `json:"mfe"`
	MAE           float64 `json:"mae"`
}

// Snapshot values the position at its last observed price. Totals are in
// account currency, rounded to cents.
func (p HeldPosition) Snapshot() PositionSnapshot {
	qty := decimal.NewFromFloat(p.Quantity)
	total := func(perShare float64) float64 {
		return decimal.NewFromFloat(perShare).Mul(qty).Round(2).InexactFloat64()
	}

	return PositionSnapshot{
		HeldPosition:  p,
		UnrealizedPnL: total(p.UnrealizedPnL(p.LastPrice)),
		MFE:           total(p.FavorableExcursion()),
		MAE:           total(p.AdverseExcursion()),
	}
}

// DailySnapshot is the end of day record of every held position.
type DailySnapshot struct {
	SchemaVersion string             `json:"schema_version"`
	Timestamp     time.Time          `json:"timestamp"`
	TradeDate     string             `json:"trade_date"`
	Positions     []PositionSnapshot `json:"positions"`
}
