package indicator

import (
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// EMA represents the Exponential Moving Average indicator.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return NewEMAWithPeriod(20)
}

// NewEMAWithPeriod creates an EMA with the given period.
func NewEMAWithPeriod(period int) Indicator {
	return &EMA{
		period: period,
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() types.IndicatorType {
	return types.IndicatorTypeEMA
}

// Key returns the registry key.
func (e *EMA) Key() string {
	return key(e.Name(), e.period)
}

// Config configures the EMA indicator. Expected parameters: period (int).
func (e *EMA) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	e.period = period

	return nil
}

// Lookback implements Indicator.
func (e *EMA) Lookback() int {
	return e.period
}

// Compute implements Indicator. The whole history is used so older bars
// keep contributing through the smoothing.
func (e *EMA) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, e.Lookback(), e.Name()); err != nil {
		return nil, err
	}

	return types.IndicatorValues{
		e.Key(): calculateExponentialMovingAverage(history, e.period),
	}, nil
}
