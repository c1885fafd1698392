package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-batch/internal/types"
)

// Highest is the highest high of the period bars before the latest bar.
// The latest bar is excluded so a close above it marks a breakout.
type Highest struct {
	period int
}

func NewHighest(period int) Indicator {
	return &Highest{period: period}
}

func (h *Highest) Name() types.IndicatorType { return types.IndicatorTypeHighest }

func (h *Highest) Key() string { return key(h.Name(), h.period) }

func (h *Highest) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	h.period = period

	return nil
}

func (h *Highest) Lookback() int { return h.period + 1 }

func (h *Highest) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, h.Lookback(), h.Name()); err != nil {
		return nil, err
	}

	highest := math.Inf(-1)
	for _, bar := range history[len(history)-h.period-1 : len(history)-1] {
		highest = math.Max(highest, bar.High)
	}

	return types.IndicatorValues{h.Key(): highest}, nil
}

// Lowest is the lowest low of the period bars before the latest bar.
type Lowest struct {
	period int
}

func NewLowest(period int) Indicator {
	return &Lowest{period: period}
}

func (l *Lowest) Name() types.IndicatorType { return types.IndicatorTypeLowest }

func (l *Lowest) Key() string { return key(l.Name(), l.period) }

func (l *Lowest) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	l.period = period

	return nil
}

func (l *Lowest) Lookback() int { return l.period + 1 }

func (l *Lowest) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, l.Lookback(), l.Name()); err != nil {
		return nil, err
	}

	lowest := math.Inf(1)
	for _, bar := range history[len(history)-l.period-1 : len(history)-1] {
		lowest = math.Min(lowest, bar.Low)
	}

	return types.IndicatorValues{l.Key(): lowest}, nil
}
