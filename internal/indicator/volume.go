package indicator

import (
	"github.com/rxtech-lab/argo-batch/internal/types"
)

// VolumeRatio is the latest volume divided by the mean volume of the
// preceding period bars.
type VolumeRatio struct {
	period int
}

func NewVolumeRatio(period int) Indicator {
	return &VolumeRatio{period: period}
}

func (v *VolumeRatio) Name() types.IndicatorType { return types.IndicatorTypeVolumeRatio }

func (v *VolumeRatio) Key() string { return key(v.Name(), v.period) }

func (v *VolumeRatio) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	v.period = period

	return nil
}

func (v *VolumeRatio) Lookback() int { return v.period + 1 }

func (v *VolumeRatio) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, v.Lookback(), v.Name()); err != nil {
		return nil, err
	}

	sum := 0.0
	for _, bar := range history[len(history)-v.period-1 : len(history)-1] {
		sum += bar.Volume
	}

	avg := sum / float64(v.period)
	if avg == 0 {
		return types.IndicatorValues{v.Key(): 0}, nil
	}

	return types.IndicatorValues{v.Key(): history[len(history)-1].Volume / avg}, nil
}
