package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-batch/internal/types"
)

// ATR represents the Average True Range indicator.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator with default configuration.
func NewATR() Indicator {
	return &ATR{
		period: 14, // Default period
	}
}

// Name returns the name of the indicator.
func (a *ATR) Name() types.IndicatorType {
	return types.IndicatorTypeATR
}

// Key returns the registry key.
func (a *ATR) Key() string {
	return key(a.Name(), a.period)
}

// Config configures the ATR indicator. Expected parameters: period (int).
func (a *ATR) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	a.period = period

	return nil
}

// Lookback implements Indicator.
func (a *ATR) Lookback() int {
	return a.period + 1
}

// Compute returns the Wilder-smoothed average true range.
func (a *ATR) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, a.Lookback(), a.Name()); err != nil {
		return nil, err
	}

	ranges := trueRanges(history)

	atr := 0.0
	for i := 0; i < a.period; i++ {
		atr += ranges[i]
	}

	atr /= float64(a.period)

	for i := a.period; i < len(ranges); i++ {
		atr = (atr*float64(a.period-1) + ranges[i]) / float64(a.period)
	}

	return types.IndicatorValues{a.Key(): atr}, nil
}

// trueRanges returns len(history)-1 true ranges, one per bar after the first.
func trueRanges(history []types.Bar) []float64 {
	ranges := make([]float64, 0, len(history)-1)

	for i := 1; i < len(history); i++ {
		bar := history[i]
		prevClose := history[i-1].Close

		tr := math.Max(
			math.Max(
				bar.High-bar.Low,
				math.Abs(bar.High-prevClose),
			),
			math.Abs(bar.Low-prevClose),
		)
		ranges = append(ranges, tr)
	}

	return ranges
}
