package regime

import (
	"github.com/rxtech-lab/argo-batch/internal/indicator"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// Config holds the thresholds used to classify the benchmark.
type Config struct {
	TrendPeriod    int     // SMA period used for trend direction. Default 50.
	SlopeLookback  int     // Bars between the two SMA readings. Default 10.
	ADXTrending    float64 // ADX at or above which the market trends. Default 25.
	VolatileATRPct float64 // ATR as percent of close above which the market is volatile. Default 3.
}

// DefaultConfig returns the thresholds used by the nightly scan.
func DefaultConfig() Config {
	return Config{
		TrendPeriod:    50,
		SlopeLookback:  10,
		ADXTrending:    25,
		VolatileATRPct: 3,
	}
}

// Result is a regime classification plus the readings that produced it.
type Result struct {
	Regime  types.Regime       `json:"regime"`
	Signals map[string]float64 `json:"signals"`
}

// Detector classifies the market from the benchmark's daily bars.
type Detector struct {
	config Config
	sma    indicator.Indicator
	adx    indicator.Indicator
	atr    indicator.Indicator
}

// NewDetector uses 14 period ADX and ATR.
func NewDetector(config Config) *Detector {
	return &Detector{
		config: config,
		sma:    indicator.NewMAWithPeriod(config.TrendPeriod),
		adx:    indicator.NewADX(),
		atr:    indicator.NewATR(),
	}
}

// Lookback is the number of bars Detect needs.
func (d *Detector) Lookback() int {
	return max(d.sma.Lookback()+d.config.SlopeLookback, d.adx.Lookback(), d.atr.Lookback())
}

// Detect classifies bars, oldest first. Volatility takes precedence over
// trend; a trend needs ADX confirmation and price on the same side of the SMA
// as its slope. Everything else is ranging.
func (d *Detector) Detect(bars []types.Bar) (Result, error) {
	unknown := Result{Regime: types.RegimeUnknown, Signals: map[string]float64{}}

	if len(bars) < d.Lookback() {
		return unknown, errors.NewInsufficientDataError(d.Lookback(), len(bars), symbolOf(bars), "not enough benchmark history for regime detection")
	}

	smaNow, err := d.value(d.sma, bars)
	if err != nil {
		return unknown, err
	}

	smaThen, err := d.value(d.sma, bars[:len(bars)-d.config.SlopeLookback])
	if err != nil {
		return unknown, err
	}

	adx, err := d.value(d.adx, bars)
	if err != nil {
		return unknown, err
	}

	atr, err := d.value(d.atr, bars)
	if err != nil {
		return unknown, err
	}

	last := bars[len(bars)-1].Close
	slope := 0.0

	if smaThen != 0 {
		slope = (smaNow - smaThen) / smaThen * 100
	}

	atrPct := 0.0
	if last != 0 {
		atrPct = atr / last * 100
	}

	result := Result{
		Regime: types.RegimeRanging,
		Signals: map[string]float64{
			"close":     last,
			"sma":       smaNow,
			"sma_slope": slope,
			"adx":       adx,
			"atr_pct":   atrPct,
		},
	}

	switch {
	case atrPct > d.config.VolatileATRPct:
		result.Regime = types.RegimeVolatile
	case adx >= d.config.ADXTrending && slope > 0 && last > smaNow:
		result.Regime = types.RegimeTrendingUp
	case adx >= d.config.ADXTrending && slope < 0 && last < smaNow:
		result.Regime = types.RegimeTrendingDown
	}

	return result, nil
}

func (d *Detector) value(ind indicator.Indicator, bars []types.Bar) (float64, error) {
	values, err := ind.Compute(bars)
	if err != nil {
		return 0, err
	}

	v, ok := values.Get(ind.Key())
	if !ok {
		return 0, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %s produced no value", ind.Key())
	}

	return v, nil
}

func symbolOf(bars []types.Bar) string {
	if len(bars) == 0 {
		return ""
	}

	return bars[0].Symbol
}
