package indicator

import (
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// MA represents a simple moving average of closes.
type MA struct {
	period int
}

// NewMA creates a new MA indicator with default configuration.
func NewMA() Indicator {
	return NewMAWithPeriod(20)
}

// NewMAWithPeriod creates an MA with the given period.
func NewMAWithPeriod(period int) Indicator {
	return &MA{
		period: period,
	}
}

// Name returns the name of the indicator.
func (m *MA) Name() types.IndicatorType {
	return types.IndicatorTypeMA
}

// Key returns the registry key.
func (m *MA) Key() string {
	return key(m.Name(), m.period)
}

// Config configures the MA indicator. Expected parameters: period (int).
func (m *MA) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	m.period = period

	return nil
}

// Lookback implements Indicator.
func (m *MA) Lookback() int {
	return m.period
}

// Compute implements Indicator.
func (m *MA) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, m.Lookback(), m.Name()); err != nil {
		return nil, err
	}

	return types.IndicatorValues{
		m.Key(): calculateSimpleMovingAverage(history[len(history)-m.period:]),
	}, nil
}
