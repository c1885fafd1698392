package types

import "github.com/moznion/go-optional"

// ExitAction is the outcome of evaluating a held position.
type ExitAction string

const (
	ExitActionHold ExitAction = "hold"
	ExitActionExit ExitAction = "exit"
)

const (
	ExitReasonEmergencyStop = "emergency_stop"
	ExitReasonDaySkip       = "day_skip"
	ExitReasonStopLoss      = "stop_loss"
	ExitReasonTrailingStop  = "trailing_stop"
	ExitReasonBreakeven     = "breakeven_stop"
	ExitReasonRegime        = "regime_exit"
	ExitReasonTakeProfit    = "take_profit"
	ExitReasonTimeExit      = "time_exit"
	ExitReasonHold          = "hold"
)

// ExitDecision is returned by the exit rule engine for every price update.
type ExitDecision struct {
	Action ExitAction
	Reason string
	// TriggerPrice is the level that fired the rule, if any.
	TriggerPrice optional.Option[float64]
	// NewStop is set when trailing or breakeven tightened the stop.
	NewStop optional.Option[float64]
	// StopReason names the rule behind NewStop.
	StopReason string
}

// Hold builds a hold decision.
func Hold(reason string) ExitDecision {
	return ExitDecision{
		Action:       ExitActionHold,
		Reason:       reason,
		TriggerPrice: optional.None[float64](),
		NewStop:      optional.None[float64](),
	}
}

// Exit builds an exit decision triggered at the given level.
func Exit(reason string, trigger float64) ExitDecision {
	return ExitDecision{
		Action:       ExitActionExit,
		Reason:       reason,
		TriggerPrice: optional.Some(trigger),
		NewStop:      optional.None[float64](),
	}
}

// IsExit reports whether the decision closes the position.
func (d ExitDecision) IsExit() bool {
	return d.Action == ExitActionExit
}

// WithNewStop attaches a tightened stop to the decision.
func (d ExitDecision) WithNewStop(stop float64, reason string) ExitDecision {
	d.NewStop = optional.Some(stop)
	d.StopReason = reason

	return d
}
