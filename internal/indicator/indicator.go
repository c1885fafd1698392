package indicator

import (
	"fmt"

	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// Indicator interface defines methods that any technical indicator must implement.
// Implementations are configured once and then computed concurrently from many
// scan workers, so Compute must not mutate the receiver.
type Indicator interface {
	// Name returns the name of the indicator
	Name() types.IndicatorType
	// Key returns the registry key, the name plus its period, e.g. "rsi_14"
	Key() string
	// Config configures the indicator parameters
	Config(params ...any) error
	// Lookback is the number of bars Compute needs
	Lookback() int
	// Compute returns the latest values keyed by output name
	Compute(history []types.Bar) (types.IndicatorValues, error)
}

func key(name types.IndicatorType, period int) string {
	return fmt.Sprintf("%s_%d", name, period)
}

func requireBars(history []types.Bar, required int, name types.IndicatorType) error {
	if len(history) < required {
		symbol := ""
		if len(history) > 0 {
			symbol = history[0].Symbol
		}

		return errors.NewInsufficientDataErrorf(required, len(history), symbol,
			"insufficient data points for %s: required %d, got %d", name, required, len(history))
	}

	return nil
}

func parsePeriod(params []any) (int, error) {
	if len(params) < 1 {
		return 0, errors.New(errors.ErrCodeMissingParameter, "Config expects at least 1 parameter: period (int)")
	}

	period, ok := params[0].(int)
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidType, "invalid type for period parameter, expected int")
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	return period, nil
}

// calculateSimpleMovingAverage calculates a simple moving average of closes.
func calculateSimpleMovingAverage(data []types.Bar) float64 {
	sum := 0.0
	for _, d := range data {
		sum += d.Close
	}

	return sum / float64(len(data))
}

// calculateExponentialMovingAverage seeds with the SMA of the first period
// closes and then applies alpha = 2/(period+1).
func calculateExponentialMovingAverage(data []types.Bar, period int) float64 {
	if len(data) == 0 {
		return 0
	}

	ema := calculateSimpleMovingAverage(data[:min(period, len(data))])
	alpha := 2.0 / float64(period+1)

	for i := period; i < len(data); i++ {
		ema = alpha*data[i].Close + (1-alpha)*ema
	}

	return ema
}
