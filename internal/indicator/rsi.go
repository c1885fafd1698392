package indicator

import (
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// RSI represents the Relative Strength Index indicator.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator with default configuration.
func NewRSI() Indicator {
	return &RSI{
		period: 14, // Default period
	}
}

// Name returns the name of the indicator.
func (r *RSI) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Key returns the registry key.
func (r *RSI) Key() string {
	return key(r.Name(), r.period)
}

// Config configures the RSI indicator. Expected parameters: period (int).
func (r *RSI) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	r.period = period

	return nil
}

// Lookback implements Indicator.
func (r *RSI) Lookback() int {
	return r.period + 1
}

// Compute calculates RSI with Wilder's smoothing.
func (r *RSI) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, r.Lookback(), r.Name()); err != nil {
		return nil, err
	}

	gains := make([]float64, 0, len(history)-1)
	losses := make([]float64, 0, len(history)-1)

	for i := 1; i < len(history); i++ {
		change := history[i].Close - history[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := 0.0
	avgLoss := 0.0

	// First average
	for i := 0; i < r.period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	// Subsequent averages using Wilder's smoothing method
	for i := r.period; i < len(gains); i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
	}

	rsi := 100.0
	if avgLoss != 0 {
		rs := avgGain / avgLoss
		rsi = 100 - (100 / (1 + rs))
	}

	return types.IndicatorValues{r.Key(): rsi}, nil
}
