package indicator

import (
	"fmt"

	"github.com/rxtech-lab/argo-batch/internal/types"
)

// ADX is Wilder's Average Directional Index, a trend strength measure.
// It also reports the +DI and -DI lines.
type ADX struct {
	period int
}

// NewADX creates an ADX with the conventional 14 period.
func NewADX() Indicator {
	return &ADX{period: 14}
}

func (a *ADX) Name() types.IndicatorType {
	return types.IndicatorTypeADX
}

func (a *ADX) Key() string {
	return key(a.Name(), a.period)
}

// Config expects period (int).
func (a *ADX) Config(params ...any) error {
	period, err := parsePeriod(params)
	if err != nil {
		return err
	}

	a.period = period

	return nil
}

// Lookback needs one period to seed the directional movement and another to seed ADX.
func (a *ADX) Lookback() int {
	return 2*a.period + 1
}

func (a *ADX) Compute(history []types.Bar) (types.IndicatorValues, error) {
	if err := requireBars(history, a.Lookback(), a.Name()); err != nil {
		return nil, err
	}

	n := float64(a.period)
	ranges := trueRanges(history)
	plusDM := make([]float64, len(ranges))
	minusDM := make([]float64, len(ranges))

	for i := 1; i < len(history); i++ {
		up := history[i].High - history[i-1].High
		down := history[i-1].Low - history[i].Low

		if up > down && up > 0 {
			plusDM[i-1] = up
		}

		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	var tr, pdm, mdm float64
	for i := 0; i < a.period; i++ {
		tr += ranges[i]
		pdm += plusDM[i]
		mdm += minusDM[i]
	}

	dxs := make([]float64, 0, len(ranges)-a.period+1)
	plusDI, minusDI := directional(pdm, mdm, tr)
	dxs = append(dxs, dx(plusDI, minusDI))

	for i := a.period; i < len(ranges); i++ {
		tr = tr - tr/n + ranges[i]
		pdm = pdm - pdm/n + plusDM[i]
		mdm = mdm - mdm/n + minusDM[i]
		plusDI, minusDI = directional(pdm, mdm, tr)
		dxs = append(dxs, dx(plusDI, minusDI))
	}

	adx := 0.0
	for i := 0; i < a.period; i++ {
		adx += dxs[i]
	}

	adx /= n

	for i := a.period; i < len(dxs); i++ {
		adx = (adx*(n-1) + dxs[i]) / n
	}

	return types.IndicatorValues{
		a.Key():                               adx,
		fmt.Sprintf("plus_di_%d", a.period):  plusDI,
		fmt.Sprintf("minus_di_%d", a.period): minusDI,
	}, nil
}

func directional(pdm, mdm, tr float64) (float64, float64) {
	if tr == 0 {
		return 0, 0
	}

	return 100 * pdm / tr, 100 * mdm / tr
}

func dx(plusDI, minusDI float64) float64 {
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}

	diff := plusDI - minusDI
	if diff < 0 {
		diff = -diff
	}

	return 100 * diff / sum
}
