package store

import (
	"os"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (suite *StoreTestSuite) SetupTest() {
	s, err := New(suite.T().TempDir(), logger.NewNop())
	suite.Require().NoError(err)
	suite.store = s
}

func batch(tradeDate string, symbols ...string) types.BatchResult {
	candidates := make([]types.Candidate, 0, len(symbols))
	for i, symbol := range symbols {
		candidates = append(candidates, types.Candidate{
			Symbol:        symbol,
			Strategy:      "breakout",
			Direction:     types.DirectionLong,
			EntryGroup:    types.EntryGroupImmediate,
			Group:         "tech",
			PrevClose:     100.125,
			ATR:           2.5,
			StopATRMult:   1.5,
			TargetATRMult: 3,
			MaxHoldDays:   5,
			Score:         0.8123456789,
			Rank:          i + 1,
		})
	}

	return types.BatchResult{
		Timestamp:    time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC),
		ScanDate:     "2026-10-14",
		TradeDate:    tradeDate,
		Regime:       types.RegimeTrendingUp,
		UniverseSize: 3,
		SignalCount:  len(symbols),
		Candidates:   candidates,
		Metadata:     types.ScanMetadata{RunID: "run", Attempts: 1},
	}
}

func (suite *StoreTestSuite) TestBatchRoundTrip() {
	in := batch("2026-10-15", "AAPL", "MSFT")
	suite.Require().NoError(suite.store.SaveBatch(in))
	suite.True(suite.store.HasBatch("2026-10-15"))

	out, err := suite.store.LoadBatch("2026-10-15")
	suite.Require().NoError(err)
	suite.Equal("1.0.0", out.SchemaVersion)
	suite.Equal(in.Candidates, out.Candidates)
	suite.True(in.Timestamp.Equal(out.Timestamp))
	suite.Equal(types.RegimeTrendingUp, out.Regime)
}

func (suite *StoreTestSuite) TestRerunOverwrites() {
	suite.Require().NoError(suite.store.SaveBatch(batch("2026-10-15", "AAPL", "MSFT")))
	suite.Require().NoError(suite.store.SaveBatch(batch("2026-10-15", "XOM")))

	out, err := suite.store.LoadBatch("2026-10-15")
	suite.Require().NoError(err)
	suite.Len(out.Candidates, 1)

	dates, err := suite.store.ListBatchDates()
	suite.Require().NoError(err)
	suite.Equal([]string{"2026-10-15"}, dates)
}

func (suite *StoreTestSuite) TestMissingArtifact() {
	_, err := suite.store.LoadBatch("2026-10-15")
	suite.True(errors.HasCode(err, errors.ErrCodeArtifactNotFound))
	suite.False(suite.store.HasFiltered("2026-10-15"))
}

func (suite *StoreTestSuite) TestCorruptArtifact() {
	suite.Require().NoError(os.WriteFile(suite.store.BatchPath("2026-10-15"), []byte("{not json"), 0o644))

	_, err := suite.store.LoadBatch("2026-10-15")
	suite.True(errors.HasCode(err, errors.ErrCodeArtifactCorrupt))
}

func (suite *StoreTestSuite) TestIncompatibleVersion() {
	suite.Require().NoError(WriteJSONAtomic(suite.store.BatchPath("2026-10-15"), types.BatchResult{SchemaVersion: "2.0.0", TradeDate: "2026-10-15"}))

	_, err := suite.store.LoadBatch("2026-10-15")
	suite.True(errors.HasCode(err, errors.ErrCodeVersionMismatch))
}

func (suite *StoreTestSuite) TestLatestBatchBefore() {
	suite.Require().NoError(suite.store.SaveBatch(batch("2026-10-13", "AAPL")))
	suite.Require().NoError(suite.store.SaveBatch(batch("2026-10-14", "MSFT")))
	suite.Require().NoError(suite.store.SaveBatch(batch("2026-10-15", "XOM")))

	prev, err := suite.store.LatestBatchBefore("2026-10-15")
	suite.Require().NoError(err)
	suite.Equal("2026-10-14", prev.TradeDate)

	_, err = suite.store.LatestBatchBefore("2026-10-13")
	suite.True(errors.HasCode(err, errors.ErrCodeArtifactNotFound))

	latest, err := suite.store.LatestBatch()
	suite.Require().NoError(err)
	suite.Equal("2026-10-15", latest.TradeDate)
}

func (suite *StoreTestSuite) TestFilteredKeepsNilPrice() {
	gap := 1.25
	price := 101.25
	in := types.GapFilterResult{
		TradeDate:    "2026-10-15",
		ThresholdPct: 3,
		Kept:         batch("2026-10-15", "AAPL").Candidates,
		Decisions: []types.GapDecision{
			{Symbol: "AAPL", Action: types.GapActionKeep, Reason: types.GapReasonWithinThreshold, Price: &price, GapPct: &gap},
			{Symbol: "MSFT", Action: types.GapActionKeep, Reason: types.GapReasonPriceUnavailable},
		},
	}
	suite.Require().NoError(suite.store.SaveFiltered(in))

	out, err := suite.store.LoadFiltered("2026-10-15")
	suite.Require().NoError(err)
	suite.InDelta(1.25, *out.Decisions[0].GapPct, 1e-12)
	suite.Nil(out.Decisions[1].Price)
}

func (suite *StoreTestSuite) TestPositions() {
	held, err := suite.store.LoadPositions()
	suite.Require().NoError(err)
	suite.Empty(held)

	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	suite.Require().NoError(suite.store.SavePositions([]types.HeldPosition{
		{Symbol: "MSFT", Direction: types.DirectionLong, EntryDate: "2026-10-15"},
		{Symbol: "AAPL", Direction: types.DirectionShort, EntryDate: "2026-10-14"},
	}, now))

	held, err = suite.store.LoadPositions()
	suite.Require().NoError(err)
	suite.Require().Len(held, 2)
	suite.Equal("AAPL", held[0].Symbol)
	suite.Equal(types.DirectionShort, held[0].Direction)
}

func (suite *StoreTestSuite) TestReentryBlocks() {
	suite.Require().NoError(suite.store.AddReentryBlock("2026-10-15", "MSFT"))
	suite.Require().NoError(suite.store.AddReentryBlock("2026-10-15", "AAPL"))
	suite.Require().NoError(suite.store.AddReentryBlock("2026-10-15", "AAPL"))

	blocked, err := suite.store.LoadReentryBlocks("2026-10-15")
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL", "MSFT"}, blocked)

	ok, err := suite.store.IsReentryBlocked("2026-10-15", "AAPL")
	suite.Require().NoError(err)
	suite.True(ok)

	ok, err = suite.store.IsReentryBlocked("2026-10-16", "AAPL")
	suite.Require().NoError(err)
	suite.False(ok)
}

func (suite *StoreTestSuite) TestEntries() {
	report := types.EntryReport{
		TradeDate: "2026-10-15",
		Group:     types.EntryGroupConfirm,
		Outcomes: []types.EntryOutcome{
			{Symbol: "AAPL", Strategy: "breakout", Status: types.EntryStatusUnconfirmed, Reason: "price below previous close"},
		},
	}
	suite.Require().NoError(suite.store.SaveEntries(report))
	suite.True(suite.store.HasEntries("2026-10-15", types.EntryGroupConfirm))
	suite.False(suite.store.HasEntries("2026-10-15", types.EntryGroupImmediate))

	out, err := suite.store.LoadEntries("2026-10-15", types.EntryGroupConfirm)
	suite.Require().NoError(err)
	suite.Equal(report.Outcomes, out.Outcomes)
}

func (suite *StoreTestSuite) TestSnapshot() {
	suite.False(suite.store.HasSnapshot("2026-10-15"))

	p := types.HeldPosition{Symbol: "AAPL", Direction: types.DirectionLong, EntryPrice: 100, Quantity: 10, HighestPrice: 103, LowestPrice: 99, LastPrice: 102}
	suite.Require().NoError(suite.store.SaveSnapshot(types.DailySnapshot{
		TradeDate: "2026-10-15",
		Positions: []types.PositionSnapshot{p.Snapshot()},
	}))
	suite.True(suite.store.HasSnapshot("2026-10-15"))

	out, err := suite.store.LoadSnapshot("2026-10-15")
	suite.Require().NoError(err)
	suite.Require().Len(out.Positions, 1)
	suite.InDelta(20, out.Positions[0].UnrealizedPnL, 1e-9)
	suite.InDelta(30, out.Positions[0].MFE, 1e-9)
	suite.InDelta(10, out.Positions[0].MAE, 1e-9)
}
