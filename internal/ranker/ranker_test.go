package ranker

import (
	"testing"

	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type RankerTestSuite struct {
	suite.Suite
	ranker *SignalRanker
}

func TestRankerSuite(t *testing.T) {
	suite.Run(t, new(RankerTestSuite))
}

func (suite *RankerTestSuite) SetupTest() {
	cfg := config.Default().Ranking
	cfg.Weights = config.RankingWeights{Strength: 1, Volatility: 0, Regime: 0, Volume: 0}
	cfg.RegimeCompatibility = map[string]map[string]float64{
		"trending_up": {"breakout:long": 1, "breakout:short": 0},
	}

	strategies := map[string]config.StrategyConfig{
		"breakout": {
			Enabled: true, EntryGroup: "confirm", StopATRMult: 1.5, TargetATRMult: 3,
			MaxHoldDays: 5, AllocationWeight: 0.1,
		},
		"rsi_mean_reversion": {
			Enabled: true, EntryGroup: "immediate", StopATRMult: 2, TargetATRMult: 2,
			MaxHoldDays: 3, AllocationWeight: 0.1,
		},
	}

	groups := map[string]string{
		"T1": "tech", "T2": "tech", "T3": "tech", "T4": "tech", "T5": "tech",
		"E1": "energy",
	}

	suite.ranker = New(cfg, strategies, groups, logger.NewNop())
}

func result(symbol, strategy string, strength float64) types.ScanResult {
	return types.ScanResult{
		Symbol:    symbol,
		Strategy:  strategy,
		Direction: types.DirectionLong,
		Strength:  strength,
		PrevClose: 100,
		ATR:       2,
		Volume:    1000,
	}
}

func symbols(candidates []types.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Symbol
	}

	return out
}

func (suite *RankerTestSuite) TestDiversificationCap() {
	results := []types.ScanResult{
		result("T1", "breakout", 0.9),
		result("T2", "breakout", 0.8),
		result("T3", "breakout", 0.7),
		result("T4", "breakout", 0.6),
		result("T5", "breakout", 0.5),
	}

	candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 10, 2)
	suite.Require().NoError(err)
	suite.Equal([]string{"T1", "T2"}, symbols(candidates))
}

func (suite *RankerTestSuite) TestCapSkipsAndKeepsScanning() {
	results := []types.ScanResult{
		result("T1", "breakout", 0.9),
		result("T2", "breakout", 0.8),
		result("T3", "breakout", 0.7),
		result("E1", "breakout", 0.1),
		result("X", "breakout", 0.05),
	}

	candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 3, 2)
	suite.Require().NoError(err)
	suite.Equal([]string{"T1", "T2", "E1"}, symbols(candidates))
	suite.Equal([]int{1, 2, 3}, []int{candidates[0].Rank, candidates[1].Rank, candidates[2].Rank})
	suite.Equal("energy", candidates[2].Group)
}

func (suite *RankerTestSuite) TestUngroupedIsNotCapped() {
	results := []types.ScanResult{
		result("A", "breakout", 0.9),
		result("B", "breakout", 0.8),
		result("C", "breakout", 0.7),
	}

	candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 10, 1)
	suite.Require().NoError(err)
	suite.Len(candidates, 3)
	suite.Equal(Ungrouped, candidates[0].Group)
}

func (suite *RankerTestSuite) TestStableOrderForEqualScores() {
	results := []types.ScanResult{
		result("C", "breakout", 0.5),
		result("A", "breakout", 0.5),
		result("B", "breakout", 0.5),
	}

	for range 5 {
		candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 10, 2)
		suite.Require().NoError(err)
		suite.Equal([]string{"A", "B", "C"}, symbols(candidates))
	}
}

func (suite *RankerTestSuite) TestBestSignalPerSymbol() {
	results := []types.ScanResult{
		result("A", "breakout", 0.4),
		result("A", "rsi_mean_reversion", 0.7),
	}

	candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 10, 2)
	suite.Require().NoError(err)
	suite.Require().Len(candidates, 1)

	c := candidates[0]
	suite.Equal("rsi_mean_reversion", c.Strategy)
	suite.Equal(types.EntryGroupImmediate, c.EntryGroup)
	suite.InDelta(2.0, c.StopATRMult, 1e-9)
	suite.Equal(3, c.MaxHoldDays)
	suite.InDelta(100.0, c.PrevClose, 1e-9)
}

func (suite *RankerTestSuite) TestTopN() {
	results := []types.ScanResult{
		result("A", "breakout", 0.1),
		result("B", "breakout", 0.3),
		result("C", "breakout", 0.2),
	}

	candidates, err := suite.ranker.Rank(results, types.RegimeRanging, 2, 2)
	suite.Require().NoError(err)
	suite.Equal([]string{"B", "C"}, symbols(candidates))
}

func (suite *RankerTestSuite) TestRegimeWeight() {
	suite.InDelta(1.0, suite.ranker.RegimeWeight(types.RegimeTrendingUp, "breakout", types.DirectionLong), 1e-9)
	suite.InDelta(0.0, suite.ranker.RegimeWeight(types.RegimeTrendingUp, "breakout", types.DirectionShort), 1e-9)
	suite.InDelta(0.5, suite.ranker.RegimeWeight(types.RegimeRanging, "breakout", types.DirectionLong), 1e-9)
}

func (suite *RankerTestSuite) TestScoreTerms() {
	cfg := config.Default().Ranking
	cfg.Weights = config.RankingWeights{Strength: 0.5, Volatility: 0.2, Regime: 0.3, Volume: 0.1}
	r := New(cfg, nil, nil, logger.NewNop())

	res := result("A", "breakout", 0.8)
	res.Indicators = types.IndicatorValues{"volume_ratio_20": 1.5}

	// strength 0.4 + volatility 0.2 (the batch max) + regime 0.3*0.5 + volume 0.1*0.5
	suite.InDelta(0.4+0.2+0.15+0.05, r.Score(res, types.RegimeRanging, 0.02), 1e-9)
}

func (suite *RankerTestSuite) TestUnknownStrategyIsRankingFailure() {
	_, err := suite.ranker.Rank([]types.ScanResult{result("A", "martingale", 0.9)}, types.RegimeRanging, 10, 2)
	suite.True(errors.IsRankingFailure(err))
}

func (suite *RankerTestSuite) TestInvalidLimits() {
	_, err := suite.ranker.Rank(nil, types.RegimeRanging, 0, 2)
	suite.True(errors.IsRankingFailure(err))
}

func (suite *RankerTestSuite) TestSkipsResultWithoutATR() {
	bad := result("A", "breakout", 0.9)
	bad.ATR = 0

	candidates, err := suite.ranker.Rank([]types.ScanResult{bad, result("B", "breakout", 0.1)}, types.RegimeRanging, 10, 2)
	suite.Require().NoError(err)
	suite.Equal([]string{"B"}, symbols(candidates))
}
