package indicator

import (
	"testing"

	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type IndicatorsTestSuite struct {
	suite.Suite
}

func TestIndicatorsSuite(t *testing.T) {
	suite.Run(t, new(IndicatorsTestSuite))
}

func (suite *IndicatorsTestSuite) TestConfigValidation() {
	rsi := NewRSI()

	err := rsi.Config()
	suite.Error(err)
	suite.Contains(err.Error(), "expects at least 1 parameter")

	err = rsi.Config("invalid")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidType))

	err = rsi.Config(0)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))

	suite.NoError(rsi.Config(21))
	suite.Equal("rsi_21", rsi.Key())
	suite.Equal(22, rsi.Lookback())
}

func (suite *IndicatorsTestSuite) TestInsufficientData() {
	_, err := NewRSI().Compute(risingBars(10, 100, 1))
	suite.True(errors.IsInsufficientDataError(err))

	_, err = NewADX().Compute(risingBars(28, 100, 1))
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorsTestSuite) TestRSIExtremes() {
	values, err := NewRSI().Compute(risingBars(30, 100, 1))
	suite.Require().NoError(err)
	suite.Equal(100.0, values["rsi_14"])

	values, err = NewRSI().Compute(risingBars(30, 100, -1))
	suite.Require().NoError(err)
	suite.InDelta(0.0, values["rsi_14"], 1e-9)
}

func (suite *IndicatorsTestSuite) TestRSIMixed() {
	closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28}
	values, err := NewRSI().Compute(barsFromCloses(closes...))
	suite.Require().NoError(err)
	suite.InDelta(70.46, values["rsi_14"], 0.1)
}

func (suite *IndicatorsTestSuite) TestATRConstantRange() {
	// High-Low is always 2 and gaps are 1, so every true range is 2.
	values, err := NewATR().Compute(risingBars(30, 100, 1))
	suite.Require().NoError(err)
	suite.InDelta(2.0, values["atr_14"], 1e-9)
}

func (suite *IndicatorsTestSuite) TestMAAndEMA() {
	bars := barsFromCloses(1, 2, 3, 4, 5)

	values, err := NewMAWithPeriod(5).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(3.0, values["sma_5"], 1e-9)

	values, err = NewMAWithPeriod(2).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(4.5, values["sma_2"], 1e-9)

	// Seed SMA(1,2,3)=2, alpha=0.5: 4 -> 3, 5 -> 4
	values, err = NewEMAWithPeriod(3).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(4.0, values["ema_3"], 1e-9)
}

func (suite *IndicatorsTestSuite) TestBollingerFlatSeries() {
	values, err := NewBollingerBands().Compute(barsFromCloses(make20(50)...))
	suite.Require().NoError(err)
	suite.InDelta(50.0, values["bb_middle_20"], 1e-9)
	suite.InDelta(50.0, values["bb_upper_20"], 1e-9)
	suite.InDelta(50.0, values["bb_lower_20"], 1e-9)

	bb := NewBollingerBands()
	suite.Error(bb.Config(20))
	suite.Error(bb.Config(20, -1.0))
	suite.NoError(bb.Config(10, 1.5))
	suite.Equal("bb_10", bb.Key())
}

func (suite *IndicatorsTestSuite) TestADXStrongTrend() {
	values, err := NewADX().Compute(risingBars(60, 100, 2))
	suite.Require().NoError(err)
	suite.Greater(values["adx_14"], 50.0)
	suite.Greater(values["plus_di_14"], values["minus_di_14"])
}

func (suite *IndicatorsTestSuite) TestHighestExcludesLatest() {
	bars := risingBars(21, 100, 1) // last close 120, previous highs up to 120 (119+1)
	values, err := NewHighest(20).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(120.0, values["highest_20"], 1e-9)

	values, err = NewLowest(20).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(99.0, values["lowest_20"], 1e-9)
}

func (suite *IndicatorsTestSuite) TestVolumeRatio() {
	bars := risingBars(21, 100, 1)
	bars[20].Volume = 3000

	values, err := NewVolumeRatio(20).Compute(bars)
	suite.Require().NoError(err)
	suite.InDelta(3.0, values["volume_ratio_20"], 1e-9)
}

func make20(v float64) []float64 {
	out := make([]float64, 20)
	for i := range out {
		out[i] = v
	}

	return out
}
