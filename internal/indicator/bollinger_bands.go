package indicator

import (
	"fmt"
	"math"

	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// BollingerBands represents the Bollinger Bands indicator.
type BollingerBands struct {
	period int     // Number of periods for moving average
	stdDev float64 // Number of standard deviations
}

// NewBollingerBands creates a new Bollinger Bands indicator with default configuration.
func NewBollingerBands() Indicator {
	return &BollingerBands{
		period: 20,  // Default period
		stdDev: 2.0, // Default standard deviation
	}
}

// Name returns the name of the indicator.
func (bb *BollingerBands) Name() types.IndicatorType {
	return types.IndicatorType("bb")
}

// Key returns the registry key.
func (bb *BollingerBands) Key() string {
	return key(bb.Name(), bb.period)
}

// Config configures the indicator. Expected parameters: period (int), stdDev (float64).
func (bb *BollingerBands) Config(params ...any) error {
	if len(params) != 2 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects 2 parameters: period (int), stdDev (float64)")
	}

	period, err := parsePeriod(params[:1])
	if err != nil {
		return err
	}

	stdDev, ok := params[1].(float64)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for stdDev parameter, expected float64")
	}

	if stdDev <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "stdDev must be a positive number, got %f", stdDev)
	}

	bb.period = period
	bb.stdDev = stdDev

	return nil
}

// Lookback implements Indicator.
func (bb *BollingerBands) Lookback() int {
	return bb.period
}

// Compute returns the upper, middle and lower bands.
func (bb *BollingerBands) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, bb.Lookback(), bb.Name()); err != nil {
		return nil, err
	}

	window := history[len(history)-bb.period:]
	middle := calculateSimpleMovingAverage(window)

	squaredDiffSum := 0.0
	for _, d := range window {
		diff := d.Close - middle
		squaredDiffSum += diff * diff
	}

	stdDev := math.Sqrt(squaredDiffSum / float64(bb.period))

	return types.IndicatorValues{
		fmt.Sprintf("bb_upper_%d", bb.period):  middle + bb.stdDev*stdDev,
		fmt.Sprintf("bb_middle_%d", bb.period): middle,
		fmt.Sprintf("bb_lower_%d", bb.period):  middle - bb.stdDev*stdDev,
	}, nil
}
