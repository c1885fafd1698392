package exit

import (
	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"go.uber.org/zap"
)

// Engine decides whether a held position should be closed at a price.
// Evaluate never mutates the position; tightened stops are returned in the
// decision and applied by the caller.
type Engine struct {
	emergencyLossPct float64
	strategies       map[string]config.StrategyConfig
	calendar         *calendar.Calendar
	logger           *logger.Logger
}

func New(cfg config.ExitConfig, strategies map[string]config.StrategyConfig, cal *calendar.Calendar, log *logger.Logger) *Engine {
	return &Engine{
		emergencyLossPct: cfg.EmergencyLossPct,
		strategies:       strategies,
		calendar:         cal,
		logger:           log.Component("exit"),
	}
}

// Evaluate applies the exit rules in priority order and returns the first
// match:
//
//  1. emergency stop, on any day including the entry day
//  2. entry day skip
//  3. stop loss, including a stop tightened by trailing or breakeven
//  4. regime guard, which only exits at a loss
//  5. take profit
//  6. time exit once the calendar days held reach the max hold
//
// today is the venue-local calendar date of the price.
func (e *Engine) Evaluate(p types.HeldPosition, price float64, indicators types.IndicatorValues, today string) types.ExitDecision {
	if p.LossFraction(price) >= e.emergencyLossPct {
		return types.Exit(types.ExitReasonEmergencyStop, price)
	}

	if p.EntryDate == today {
		return types.Hold(types.ExitReasonDaySkip)
	}

	strategy := e.strategies[p.Strategy]

	stop, stopReason, tightened := e.effectiveStop(p, price, strategy)
	decision := e.decide(p, price, indicators, today, strategy, stop, stopReason)

	if tightened {
		decision = decision.WithNewStop(stop, stopReason)
	}

	return decision
}

func (e *Engine) decide(p types.HeldPosition, price float64, indicators types.IndicatorValues, today string,
	strategy config.StrategyConfig, stop float64, stopReason string) types.ExitDecision {
	if stop > 0 && crossedStop(p.Direction, price, stop) {
		return types.Exit(stopReason, stop)
	}

	if e.regimeShifted(p, indicators, strategy.RegimeGuard) {
		if p.UnrealizedPnL(price) < 0 {
			return types.Exit(types.ExitReasonRegime, price)
		}

		e.logger.Debug("regime_guard_deferred",
			zap.String("symbol", p.Symbol),
			zap.Float64("price", price),
			zap.Float64("entry_price", p.EntryPrice),
		)
	}

	if p.TargetPrice > 0 && reachedTarget(p.Direction, price, p.TargetPrice) {
		return types.Exit(types.ExitReasonTakeProfit, p.TargetPrice)
	}

	if p.MaxHoldDays > 0 {
		days, err := e.calendar.CalendarDaysBetween(p.EntryDate, today)
		if err != nil {
			e.logger.Warn("Cannot compute days held", zap.String("symbol", p.Symbol), zap.Error(err))
		} else if days >= p.MaxHoldDays {
			return types.Exit(types.ExitReasonTimeExit, price)
		}
	}

	return types.Hold(types.ExitReasonHold)
}

// effectiveStop returns the stop in force at price. Breakeven and trailing can
// only tighten the current stop.
func (e *Engine) effectiveStop(p types.HeldPosition, price float64, strategy config.StrategyConfig) (float64, string, bool) {
	next := p
	next.Observe(price, p.LastUpdate)

	if p.ATR <= 0 {
		return p.StopPrice, p.StopExitReason(), false
	}

	favorable := next.FavorableExcursion()
	tightened := false

	if be := strategy.Breakeven; be != nil && favorable >= be.ActivationATR*p.ATR {
		tightened = next.TightenStop(p.EntryPrice, types.ExitReasonBreakeven) || tightened
	}

	if tr := strategy.Trailing; tr != nil && favorable >= tr.ActivationATR*p.ATR {
		extreme := next.HighestPrice
		if p.Direction == types.DirectionShort {
			extreme = next.LowestPrice
		}

		trail := extreme - p.Direction.Sign()*tr.TrailATR*p.ATR
		tightened = next.TightenStop(trail, types.ExitReasonTrailingStop) || tightened
	}

	return next.StopPrice, next.StopExitReason(), tightened
}

func (e *Engine) regimeShifted(p types.HeldPosition, indicators types.IndicatorValues, guard *config.RegimeGuardConfig) bool {
	if guard == nil {
		return false
	}

	current, ok := indicators.Get(guard.Indicator)
	if !ok {
		return false
	}

	atEntry, ok := p.EntryIndicators.Get(guard.Indicator)
	if !ok {
		return false
	}

	return current >= guard.Absolute && current-atEntry >= guard.Delta
}

func crossedStop(direction types.Direction, price, stop float64) bool {
	if direction == types.DirectionShort {
		return price >= stop
	}

	return price <= stop
}

func reachedTarget(direction types.Direction, price, target float64) bool {
	if direction == types.DirectionShort {
		return price <= target
	}

	return price >= target
}
