package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/fetcher"
	"github.com/rxtech-lab/argo-batch/internal/gapfilter"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/scanner"
	"github.com/rxtech-lab/argo-batch/internal/scheduler"
	"github.com/rxtech-lab/argo-batch/internal/store"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type fakeScanner struct {
	result scanner.Result
	err    error
}

func (f *fakeScanner) ScanWithRetry(context.Context, []string, fetcher.Progress) (scanner.Result, error) {
	return f.result, f.err
}

type fakeRanker struct {
	candidates []types.Candidate
	err        error
}

func (f *fakeRanker) Rank([]types.ScanResult, types.Regime, int, int) ([]types.Candidate, error) {
	return f.candidates, f.err
}

type fakeEntries struct {
	mu     sync.Mutex
	open   bool
	calls  map[types.EntryGroup]int
	inputs []types.Candidate
}

func (f *fakeEntries) execute(tradeDate string, group types.EntryGroup, cands []types.Candidate) (types.EntryReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[group]++
	f.inputs = cands

	report := types.EntryReport{TradeDate: tradeDate, Group: group}
	for _, c := range types.FilterByEntryGroup(cands, group) {
		report.Outcomes = append(report.Outcomes, types.EntryOutcome{Symbol: c.Symbol, Strategy: c.Strategy, Status: types.EntryStatusEntered})
	}

	return report, nil
}

func (f *fakeEntries) ExecuteImmediate(_ context.Context, tradeDate string, cands []types.Candidate) (types.EntryReport, error) {
	return f.execute(tradeDate, types.EntryGroupImmediate, cands)
}

func (f *fakeEntries) ExecuteConfirmed(_ context.Context, tradeDate string, cands []types.Candidate) (types.EntryReport, error) {
	return f.execute(tradeDate, types.EntryGroupConfirm, cands)
}

func (f *fakeEntries) IsWindowOpen(time.Time) bool {
	return f.open
}

type fakeMonitor struct {
	running    bool
	started    []types.HeldPosition
	starts     int
	stops      int
	indicators map[string]types.IndicatorValues
	snapshots  []types.PositionSnapshot
}

func (f *fakeMonitor) Start(_ context.Context, positions []types.HeldPosition) error {
	f.running = true
	f.starts++
	f.started = positions

	return nil
}

func (f *fakeMonitor) Stop() {
	f.running = false
	f.stops++
}

func (f *fakeMonitor) Running() bool {
	return f.running
}

func (f *fakeMonitor) GetHeld() []types.HeldPosition {
	return f.started
}

func (f *fakeMonitor) Snapshots() []types.PositionSnapshot {
	return f.snapshots
}

func (f *fakeMonitor) UpdateIndicators(v map[string]types.IndicatorValues) error {
	f.indicators = v

	return nil
}

type fakeBroker struct {
	positions []types.BrokerPosition
	prices    map[string]float64
	err       error
}

func (f *fakeBroker) GetPositions(context.Context) ([]types.BrokerPosition, error) {
	return f.positions, f.err
}

func (f *fakeBroker) FetchLatestPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}

	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}

	return out, nil
}

type PipelineTestSuite struct {
	suite.Suite
	cfg      *config.Config
	calendar *calendar.Calendar
	store    *store.Store
	scanner  *fakeScanner
	ranker   *fakeRanker
	entries  *fakeEntries
	monitor  *fakeMonitor
	broker   *fakeBroker
	now      time.Time
	pipeline *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (suite *PipelineTestSuite) SetupTest() {
	cal, err := calendar.New("America/New_York", nil, 9*time.Hour+30*time.Minute, 16*time.Hour)
	suite.Require().NoError(err)

	st, err := store.New(suite.T().TempDir(), logger.NewNop())
	suite.Require().NoError(err)

	cfg := config.Default()
	cfg.Universe.Symbols = []string{"AAPL", "MSFT", "TSLA"}
	cfg.Strategies = map[string]config.StrategyConfig{
		"breakout":  {Enabled: true, EntryGroup: "immediate", StopATRMult: 1.5, TargetATRMult: 3, MaxHoldDays: 5, AllocationWeight: 0.1},
		"reversion": {Enabled: true, EntryGroup: "confirm", StopATRMult: 1, TargetATRMult: 2, MaxHoldDays: 3, AllocationWeight: 0.1},
		"disabled":  {Enabled: false, EntryGroup: "confirm", StopATRMult: 0.5, TargetATRMult: 1, MaxHoldDays: 1, AllocationWeight: 0.1},
	}

	suite.cfg = &cfg
	suite.calendar = cal
	suite.store = st
	suite.scanner = &fakeScanner{}
	suite.ranker = &fakeRanker{}
	suite.entries = &fakeEntries{open: true, calls: map[types.EntryGroup]int{}}
	suite.monitor = &fakeMonitor{}
	suite.broker = &fakeBroker{prices: map[string]float64{"AAPL": 101, "MSFT": 105}}
	suite.now = time.Date(2026, 10, 15, 20, 0, 0, 0, cal.Location())

	suite.pipeline = New(Deps{
		Config:   suite.cfg,
		Calendar: cal,
		Store:    st,
		Scanner:  suite.scanner,
		Ranker:   suite.ranker,
		Gap:      gapfilter.New(suite.broker, logger.NewNop()),
		Entries:  suite.entries,
		Monitor:  suite.monitor,
		Broker:   suite.broker,
		Metrics:  nil,
		Now:      func() time.Time { return suite.now },
	}, logger.NewNop())
}

func (suite *PipelineTestSuite) at(day, hour, minute int) {
	suite.now = time.Date(2026, 10, day, hour, minute, 0, 0, suite.calendar.Location())
}

func candidate(symbol, strategy string, group types.EntryGroup) types.Candidate {
	return types.Candidate{
		Symbol:        symbol,
		Strategy:      strategy,
		Direction:     types.DirectionLong,
		EntryGroup:    group,
		PrevClose:     100,
		ATR:           2,
		StopATRMult:   1.5,
		TargetATRMult: 3,
		MaxHoldDays:   5,
	}
}

func (suite *PipelineTestSuite) saveBatch(tradeDate string, candidates ...types.Candidate) {
	suite.Require().NoError(suite.store.SaveBatch(types.BatchResult{
		TradeDate:  tradeDate,
		ScanDate:   tradeDate,
		Regime:     types.RegimeRanging,
		Candidates: candidates,
		Metadata:   types.ScanMetadata{RunID: "previous"},
	}))
}

func (suite *PipelineTestSuite) TestNightlyScanPersistsBatchForNextTradeDate() {
	suite.Require().NoError(suite.store.SavePositions([]types.HeldPosition{{Symbol: "AAPL", Direction: types.DirectionLong, Quantity: 10}}, suite.now))

	suite.scanner.result = scanner.Result{
		Results:       []types.ScanResult{{Symbol: "MSFT", Strategy: "breakout", Direction: types.DirectionLong, Strength: 0.9}},
		Regime:        types.RegimeTrendingUp,
		Indicators:    map[string]types.IndicatorValues{"AAPL": {"adx_14": 31}, "MSFT": {"adx_14": 20}},
		UniverseSize:  3,
		FailedSymbols: []string{"TSLA"},
		ErrorCount:    1,
		Duration:      1500 * time.Millisecond,
		Attempts:      2,
	}
	suite.ranker.candidates = []types.Candidate{candidate("MSFT", "breakout", types.EntryGroupImmediate)}

	batch, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.Require().NoError(err)
	suite.Equal("2026-10-16", batch.TradeDate)
	suite.Equal("2026-10-15", batch.ScanDate)

	saved, err := suite.store.LoadBatch("2026-10-16")
	suite.Require().NoError(err)
	suite.Equal(types.RegimeTrendingUp, saved.Regime)
	suite.Equal(1, saved.SignalCount)
	suite.Len(saved.Candidates, 1)
	suite.Equal([]string{"TSLA"}, saved.Metadata.FailedSymbols)
	suite.Equal(2, saved.Metadata.Attempts)
	suite.InDelta(1.5, saved.Metadata.DurationSeconds, 1e-9)
	suite.NotEmpty(saved.Metadata.RunID)
	suite.False(saved.Metadata.Stale)
	suite.Equal(map[string]types.IndicatorValues{"AAPL": {"adx_14": 31}}, saved.Indicators)
}

func (suite *PipelineTestSuite) TestNightlyScanRerunOverwritesBatch() {
	suite.scanner.result = scanner.Result{
		Results:      []types.ScanResult{{Symbol: "MSFT", Strategy: "breakout", Direction: types.DirectionLong, Strength: 0.9}},
		Regime:       types.RegimeRanging,
		UniverseSize: 3,
	}
	suite.ranker.candidates = []types.Candidate{candidate("MSFT", "breakout", types.EntryGroupImmediate)}

	first, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.Require().NoError(err)

	suite.ranker.candidates = []types.Candidate{candidate("AAPL", "breakout", types.EntryGroupImmediate)}

	second, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.Require().NoError(err)
	suite.Equal(first.TradeDate, second.TradeDate)
	suite.NotEqual(first.Metadata.RunID, second.Metadata.RunID)

	saved, err := suite.store.LoadBatch("2026-10-16")
	suite.Require().NoError(err)
	suite.Equal(second.Metadata.RunID, saved.Metadata.RunID)
	suite.Require().Len(saved.Candidates, 1)
	suite.Equal("AAPL", saved.Candidates[0].Symbol)

	suite.at(16, 9, 31)

	report, err := suite.pipeline.RunEntries(context.Background(), types.EntryGroupImmediate)
	suite.Require().NoError(err)
	suite.Equal(1, report.Entered())
	suite.Require().Len(suite.entries.inputs, 1)
	suite.Equal("AAPL", suite.entries.inputs[0].Symbol)

	_, err = suite.pipeline.RunEntries(context.Background(), types.EntryGroupImmediate)
	suite.Require().NoError(err)
	suite.Equal(1, suite.entries.calls[types.EntryGroupImmediate])
}

func (suite *PipelineTestSuite) TestNightlyScanFallsBackToStaleBatch() {
	suite.saveBatch("2026-10-15", candidate("AAPL", "breakout", types.EntryGroupImmediate))
	suite.scanner.err = errors.New(errors.ErrCodeScanFailure, "provider down")

	batch, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.Require().NoError(err)
	suite.True(batch.Metadata.Stale)
	suite.Equal("2026-10-15", batch.Metadata.StaleSource)
	suite.Equal("2026-10-16", batch.TradeDate)
	suite.NotEqual("previous", batch.Metadata.RunID)

	saved, err := suite.store.LoadBatch("2026-10-16")
	suite.Require().NoError(err)
	suite.True(saved.Metadata.Stale)
	suite.Len(saved.Candidates, 1)
}

func (suite *PipelineTestSuite) TestNightlyScanFailsWithoutEarlierBatch() {
	suite.scanner.err = stderrors.New("provider down")

	_, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.Error(err)
	suite.True(errors.IsScanFailure(err))
	suite.False(suite.store.HasBatch("2026-10-16"))
}

func (suite *PipelineTestSuite) TestRankingFailureWritesNothing() {
	suite.ranker.err = errors.New(errors.ErrCodeRankingFailure, "no strategies")

	_, err := suite.pipeline.RunNightlyScan(context.Background(), nil)
	suite.True(errors.IsRankingFailure(err))
	suite.False(suite.store.HasBatch("2026-10-16"))
}

func (suite *PipelineTestSuite) TestPremarketDropsGappedCandidates() {
	suite.at(16, 9, 15)
	suite.saveBatch("2026-10-16",
		candidate("AAPL", "breakout", types.EntryGroupImmediate),
		candidate("MSFT", "breakout", types.EntryGroupImmediate),
		candidate("TSLA", "reversion", types.EntryGroupConfirm),
	)

	result, err := suite.pipeline.RunPremarket(context.Background())
	suite.Require().NoError(err)
	suite.Require().Len(result.Kept, 2)
	suite.Equal("AAPL", result.Kept[0].Symbol)
	suite.Equal("TSLA", result.Kept[1].Symbol)
	suite.Len(result.Decisions, 3)
	suite.True(suite.store.HasFiltered("2026-10-16"))
}

func (suite *PipelineTestSuite) TestPremarketSkipsWithoutBatch() {
	suite.at(16, 9, 15)

	_, err := suite.pipeline.RunPremarket(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeStageSkipped))

	suite.at(17, 9, 15)

	_, err = suite.pipeline.RunPremarket(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeStageSkipped))
}

func (suite *PipelineTestSuite) TestEntriesRunMissedStagesOnce() {
	suite.at(16, 9, 31)
	suite.saveBatch("2026-10-16",
		candidate("AAPL", "breakout", types.EntryGroupImmediate),
		candidate("MSFT", "breakout", types.EntryGroupImmediate),
	)

	report, err := suite.pipeline.RunEntries(context.Background(), types.EntryGroupImmediate)
	suite.Require().NoError(err)
	suite.Equal(1, report.Entered())
	suite.True(suite.store.HasFiltered("2026-10-16"))
	suite.True(suite.store.HasEntries("2026-10-16", types.EntryGroupImmediate))
	suite.Equal(1, suite.monitor.starts)
	suite.Require().Len(suite.entries.inputs, 1)
	suite.Equal("AAPL", suite.entries.inputs[0].Symbol)

	again, err := suite.pipeline.RunEntries(context.Background(), types.EntryGroupImmediate)
	suite.Require().NoError(err)
	suite.Equal(1, again.Entered())
	suite.Equal(1, suite.entries.calls[types.EntryGroupImmediate])
	suite.Equal(1, suite.monitor.starts)
}

func (suite *PipelineTestSuite) TestEntriesSkipAfterWindow() {
	suite.at(16, 10, 45)
	suite.entries.open = false
	suite.saveBatch("2026-10-16", candidate("AAPL", "reversion", types.EntryGroupConfirm))

	_, err := suite.pipeline.RunEntries(context.Background(), types.EntryGroupConfirm)
	suite.True(errors.HasCode(err, errors.ErrCodeStageSkipped))
	suite.False(suite.store.HasEntries("2026-10-16", types.EntryGroupConfirm))
	suite.Zero(suite.entries.calls[types.EntryGroupConfirm])
}

func (suite *PipelineTestSuite) TestReconcile() {
	suite.at(15, 9, 25)
	suite.Require().NoError(suite.store.SavePositions([]types.HeldPosition{
		{Symbol: "AAPL", Direction: types.DirectionLong, Quantity: 10, EntryPrice: 100, EntryDate: "2026-10-13"},
		{Symbol: "MSFT", Direction: types.DirectionLong, Quantity: 5, EntryPrice: 300, EntryDate: "2026-10-13"},
	}, suite.now))
	suite.Require().NoError(suite.store.SaveBatch(types.BatchResult{
		TradeDate:   "2026-10-15",
		ScanResults: []types.ScanResult{{Symbol: "TSLA", Strategy: "breakout", ATR: 5}},
	}))

	suite.broker.positions = []types.BrokerPosition{
		{Symbol: "AAPL", Quantity: 8, AvgEntryPrice: 100},
		{Symbol: "TSLA", Quantity: -4, AvgEntryPrice: 200},
		{Symbol: "NVDA", Quantity: 0, AvgEntryPrice: 50},
	}
	suite.broker.prices = map[string]float64{"TSLA": 190}

	report, held, err := suite.pipeline.Reconcile(context.Background())
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL"}, report.Kept)
	suite.Equal([]string{"AAPL"}, report.Adjusted)
	suite.Equal([]string{"MSFT"}, report.Dropped)
	suite.Equal([]string{"TSLA"}, report.Adopted)
	suite.Require().Len(held, 2)

	suite.InDelta(8, held[0].Quantity, 1e-9)

	tsla := held[1]
	suite.Equal(types.DirectionShort, tsla.Direction)
	suite.True(tsla.Adopted)
	suite.Equal(AdoptedStrategy, tsla.Strategy)
	suite.InDelta(4, tsla.Quantity, 1e-9)
	suite.InDelta(200, tsla.EntryPrice, 1e-9)
	suite.InDelta(195, tsla.StopPrice, 1e-9)
	suite.InDelta(180, tsla.TargetPrice, 1e-9)
	suite.Equal(3, tsla.MaxHoldDays)
	suite.Equal("2026-10-14", tsla.EntryDate)
	suite.False(tsla.EntryDay)

	saved, err := suite.store.LoadPositions()
	suite.Require().NoError(err)
	suite.Len(saved, 2)
}

func (suite *PipelineTestSuite) TestAdoptFallsBackToPriceFraction() {
	suite.at(15, 9, 25)
	suite.broker.positions = []types.BrokerPosition{{Symbol: "XOM", Quantity: 10, AvgEntryPrice: 100}}
	suite.broker.prices = map[string]float64{}

	_, held, err := suite.pipeline.Reconcile(context.Background())
	suite.Require().NoError(err)
	suite.Require().Len(held, 1)
	suite.InDelta(2, held[0].ATR, 1e-9)
	suite.InDelta(98, held[0].StopPrice, 1e-9)
	suite.InDelta(104, held[0].TargetPrice, 1e-9)
}

func (suite *PipelineTestSuite) TestReconcileRefusesWhileMonitoring() {
	suite.monitor.running = true

	_, _, err := suite.pipeline.Reconcile(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeMonitorRunning))
}

func (suite *PipelineTestSuite) TestMonitorStartPushesIndicators() {
	suite.at(16, 9, 25)
	msft := candidate("MSFT", "breakout", types.EntryGroupImmediate)
	msft.Indicators = types.IndicatorValues{"adx_14": 18}
	suite.Require().NoError(suite.store.SaveBatch(types.BatchResult{
		TradeDate:  "2026-10-16",
		Candidates: []types.Candidate{msft},
		Indicators: map[string]types.IndicatorValues{"AAPL": {"adx_14": 33}},
	}))
	suite.broker.positions = []types.BrokerPosition{{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}}
	suite.broker.prices = map[string]float64{"AAPL": 102}

	report, err := suite.pipeline.RunMonitorStart(context.Background())
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL"}, report.Adopted)
	suite.Equal(1, suite.monitor.starts)
	suite.Len(suite.monitor.started, 1)
	suite.Equal(map[string]types.IndicatorValues{
		"AAPL": {"adx_14": 33},
		"MSFT": {"adx_14": 18},
	}, suite.monitor.indicators)

	_, err = suite.pipeline.RunMonitorStart(context.Background())
	suite.Require().NoError(err)
	suite.Equal(1, suite.monitor.starts)
}

func (suite *PipelineTestSuite) TestEndOfDayStopsMonitorAndSnapshots() {
	suite.at(16, 16, 10)
	suite.monitor.running = true
	p := types.HeldPosition{Symbol: "AAPL", Direction: types.DirectionLong, EntryPrice: 100, Quantity: 10, HighestPrice: 104, LowestPrice: 99, LastPrice: 103}
	suite.monitor.snapshots = []types.PositionSnapshot{p.Snapshot()}

	snapshot, err := suite.pipeline.RunEndOfDay(context.Background())
	suite.Require().NoError(err)
	suite.Equal(1, suite.monitor.stops)
	suite.Equal("2026-10-16", snapshot.TradeDate)
	suite.True(suite.store.HasSnapshot("2026-10-16"))

	saved, err := suite.store.LoadSnapshot("2026-10-16")
	suite.Require().NoError(err)
	suite.Require().Len(saved.Positions, 1)
	suite.InDelta(30, saved.Positions[0].UnrealizedPnL, 1e-9)
}

func (suite *PipelineTestSuite) TestRegisterAddsEveryStage() {
	s := scheduler.New(suite.calendar, suite.cfg.Schedule.Retry, scheduler.RealClock(), nil, logger.NewNop())
	suite.Require().NoError(suite.pipeline.Register(s))

	names := make([]string, 0, 6)
	for _, t := range s.Tasks() {
		names = append(names, t.Name)
	}

	suite.Equal([]string{
		TaskPremarket,
		TaskMonitorStart,
		TaskEntryImmediate,
		TaskEntryConfirm,
		TaskEndOfDay,
		TaskNightlyScan,
	}, names)
}

func (suite *PipelineTestSuite) TestArtifactChecks() {
	suite.at(16, 9, 40)
	done := suite.pipeline.entriesDone(types.EntryGroupImmediate)

	suite.False(done(suite.now))

	suite.Require().NoError(suite.store.SaveEntries(types.EntryReport{TradeDate: "2026-10-16", Group: types.EntryGroupImmediate}))
	suite.True(done(suite.now))

	confirmDone := suite.pipeline.entriesDone(types.EntryGroupConfirm)
	suite.False(confirmDone(suite.now))

	suite.entries.open = false
	suite.True(confirmDone(suite.now))
}
