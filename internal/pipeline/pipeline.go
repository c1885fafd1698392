package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/fetcher"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/internal/scanner"
	"github.com/rxtech-lab/argo-batch/internal/store"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/version"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Task names registered with the scheduler.
const (
	TaskNightlyScan    = "nightly_scan"
	TaskPremarket      = "premarket_filter"
	TaskMonitorStart   = "monitor_start"
	TaskEntryImmediate = "entry_immediate"
	TaskEntryConfirm   = "entry_confirm"
	TaskEndOfDay       = "end_of_day"
)

type Scanner interface {
	ScanWithRetry(ctx context.Context, symbols []string, progress fetcher.Progress) (scanner.Result, error)
}

type Ranker interface {
	Rank(results []types.ScanResult, regime types.Regime, topN, maxPerGroup int) ([]types.Candidate, error)
}

type GapFilter interface {
	Filter(ctx context.Context, candidates []types.Candidate, thresholdPct float64) ([]types.Candidate, []types.GapDecision)
}

type Entries interface {
	ExecuteImmediate(ctx context.Context, tradeDate string, candidates []types.Candidate) (types.EntryReport, error)
	ExecuteConfirmed(ctx context.Context, tradeDate string, candidates []types.Candidate) (types.EntryReport, error)
	IsWindowOpen(t time.Time) bool
}

// Monitor is the part of the position monitor the pipeline drives.
type Monitor interface {
	Start(ctx context.Context, positions []types.HeldPosition) error
	Stop()
	Running() bool
	GetHeld() []types.HeldPosition
	Snapshots() []types.PositionSnapshot
	UpdateIndicators(values map[string]types.IndicatorValues) error
}

// Broker answers what the account actually holds.
type Broker interface {
	GetPositions(ctx context.Context) ([]types.BrokerPosition, error)
	FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

type Deps struct {
	Config   *config.Config
	Calendar *calendar.Calendar
	Store    *store.Store
	Scanner  Scanner
	Ranker   Ranker
	Gap      GapFilter
	Entries  Entries
	Monitor  Monitor
	Broker   Broker
	Metrics  *metrics.Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs the daily stages. Every stage reads its inputs from the store
// and writes one artifact per trade date, so any stage can be re-run alone.
type Pipeline struct {
	config   *config.Config
	calendar *calendar.Calendar
	store    *store.Store
	scanner  Scanner
	ranker   Ranker
	gap      GapFilter
	entries  Entries
	monitor  Monitor
	broker   Broker
	metrics  *metrics.Recorder
	now      func() time.Time
	logger   *logger.Logger
}

func New(deps Deps, log *logger.Logger) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		config:   deps.Config,
		calendar: deps.Calendar,
		store:    deps.Store,
		scanner:  deps.Scanner,
		ranker:   deps.Ranker,
		gap:      deps.Gap,
		entries:  deps.Entries,
		monitor:  deps.Monitor,
		broker:   deps.Broker,
		metrics:  deps.Metrics,
		now:      now,
		logger:   log.Component("pipeline"),
	}
}

// RunNightlyScan scans the universe, ranks the signals and persists the batch
// result for the next trade date. When every scan attempt fails the latest
// earlier batch is carried forward and marked stale.
func (p *Pipeline) RunNightlyScan(ctx context.Context, progress fetcher.Progress) (types.BatchResult, error) {
	now := p.now()
	tradeDate := p.calendar.TradeDateFor(now)
	scanDate := p.calendar.Date(now)
	log := p.logger.With(zap.String("trade_date", tradeDate))

	res, err := p.scanner.ScanWithRetry(ctx, p.config.Universe.Symbols, progress)
	if err != nil {
		if ctx.Err() != nil {
			return types.BatchResult{}, err
		}

		return p.carryForward(tradeDate, scanDate, now, err)
	}

	candidates, err := p.ranker.Rank(res.Results, res.Regime, p.config.Ranking.TopN, p.config.Ranking.MaxPerGroup)
	if err != nil {
		return types.BatchResult{}, err
	}

	batch := types.BatchResult{
		SchemaVersion: version.SchemaVersion,
		Timestamp:     now,
		ScanDate:      scanDate,
		TradeDate:     tradeDate,
		Regime:        res.Regime,
		UniverseSize:  res.UniverseSize,
		SignalCount:   len(res.Results),
		Candidates:    candidates,
		ScanResults:   res.Results,
		Indicators:    p.heldIndicators(res.Indicators),
		Metadata: types.ScanMetadata{
			RunID:           uuid.NewString(),
			DurationSeconds: res.Duration.Seconds(),
			Attempts:        res.Attempts,
			ErrorCount:      res.ErrorCount,
			FailedSymbols:   res.FailedSymbols,
			Stale:           false,
			StaleSource:     "",
		},
	}

	if err := p.store.SaveBatch(batch); err != nil {
		return types.BatchResult{}, err
	}

	p.metrics.RecordScan(res.UniverseSize, len(res.FailedSymbols))
	p.metrics.RecordCandidates("ranked", len(candidates))

	log.Info("Nightly scan finished",
		zap.String("regime", string(res.Regime)),
		zap.Int("universe", res.UniverseSize),
		zap.Int("signals", len(res.Results)),
		zap.Int("candidates", len(candidates)),
		zap.Int("failed_symbols", len(res.FailedSymbols)),
		zap.Int("attempts", res.Attempts),
	)

	return batch, nil
}

func (p *Pipeline) carryForward(tradeDate, scanDate string, now time.Time, cause error) (types.BatchResult, error) {
	prev, err := p.store.LatestBatchBefore(tradeDate)
	if err != nil {
		return types.BatchResult{}, errors.Wrapf(errors.ErrCodeScanFailure, cause, "scan failed and no earlier batch exists before %s", tradeDate)
	}

	source := prev.TradeDate
	if prev.Metadata.Stale && prev.Metadata.StaleSource != "" {
		source = prev.Metadata.StaleSource
	}

	batch := prev
	batch.Timestamp = now
	batch.ScanDate = scanDate
	batch.TradeDate = tradeDate
	batch.Metadata.RunID = uuid.NewString()
	batch.Metadata.Stale = true
	batch.Metadata.StaleSource = source

	if err := p.store.SaveBatch(batch); err != nil {
		return types.BatchResult{}, err
	}

	p.metrics.RecordStaleFallback()
	p.metrics.RecordCandidates("ranked", len(batch.Candidates))

	p.logger.Warn("Scan failed, using stale batch result",
		zap.String("trade_date", tradeDate),
		zap.String("stale_source", source),
		zap.Int("candidates", len(batch.Candidates)),
		zap.Error(cause),
	)

	return batch, nil
}

// heldIndicators keeps the scan's indicator values for symbols currently held.
func (p *Pipeline) heldIndicators(all map[string]types.IndicatorValues) map[string]types.IndicatorValues {
	held, err := p.store.LoadPositions()
	if err != nil {
		p.logger.Warn("Failed to load positions for indicator refresh", zap.Error(err))

		return nil
	}

	out := make(map[string]types.IndicatorValues, len(held))

	for _, h := range held {
		if values, ok := all[h.Symbol]; ok {
			out[h.Symbol] = values
		}
	}

	return out
}

// RunPremarket applies the gap filter to today's candidates.
func (p *Pipeline) RunPremarket(ctx context.Context) (types.GapFilterResult, error) {
	now := p.now()
	if !p.calendar.IsTradingDay(now) {
		return types.GapFilterResult{}, errors.New(errors.ErrCodeStageSkipped, "not a trading day")
	}

	today := p.calendar.Date(now)

	batch, err := p.store.LoadBatch(today)
	if errors.HasCode(err, errors.ErrCodeArtifactNotFound) {
		return types.GapFilterResult{}, errors.Wrapf(errors.ErrCodeStageSkipped, err, "no batch result for %s", today)
	}

	if err != nil {
		return types.GapFilterResult{}, err
	}

	threshold := p.config.GapFilter.ThresholdPct
	kept, decisions := p.gap.Filter(ctx, batch.Candidates, threshold)

	result := types.GapFilterResult{
		SchemaVersion: version.SchemaVersion,
		Timestamp:     now,
		TradeDate:     today,
		ThresholdPct:  threshold,
		Kept:          kept,
		Decisions:     decisions,
	}

	if err := p.store.SaveFiltered(result); err != nil {
		return types.GapFilterResult{}, err
	}

	for _, d := range decisions {
		p.metrics.RecordGapDecision(d.Reason)
	}

	p.metrics.RecordCandidates("filtered", len(kept))

	p.logger.Info("Pre-market filter finished",
		zap.String("trade_date", today),
		zap.Int("candidates", len(batch.Candidates)),
		zap.Int("kept", len(kept)),
		zap.Bool("stale_batch", batch.Metadata.Stale),
	)

	return result, nil
}

// RunEntries executes one entry group. A group that already has an entries
// artifact for today is not executed again.
func (p *Pipeline) RunEntries(ctx context.Context, group types.EntryGroup) (types.EntryReport, error) {
	now := p.now()
	today := p.calendar.Date(now)

	if p.store.HasEntries(today, group) {
		p.logger.Info("Entry stage already ran", zap.String("group", string(group)), zap.String("trade_date", today))

		return p.store.LoadEntries(today, group)
	}

	if !p.entries.IsWindowOpen(now) {
		return types.EntryReport{}, errors.Newf(errors.ErrCodeStageSkipped, "entry window closed for %s", group)
	}

	filtered, err := p.filtered(ctx, today)
	if err != nil {
		return types.EntryReport{}, err
	}

	if !p.monitor.Running() {
		if _, err := p.RunMonitorStart(ctx); err != nil {
			return types.EntryReport{}, err
		}
	}

	var report types.EntryReport

	switch group {
	case types.EntryGroupImmediate:
		report, err = p.entries.ExecuteImmediate(ctx, today, filtered.Kept)
	case types.EntryGroupConfirm:
		report, err = p.entries.ExecuteConfirmed(ctx, today, filtered.Kept)
	default:
		return types.EntryReport{}, errors.Newf(errors.ErrCodeInvalidParameter, "unknown entry group %q", group)
	}

	if errors.IsEntryWindowClosed(err) {
		return types.EntryReport{}, errors.Wrap(errors.ErrCodeStageSkipped, "entry window closed", err)
	}

	if err != nil {
		return types.EntryReport{}, err
	}

	if err := p.store.SaveEntries(report); err != nil {
		return types.EntryReport{}, err
	}

	p.metrics.RecordCandidates("entered_"+string(group), report.Entered())

	return report, nil
}

// filtered loads today's gap filter output, running the filter first when a
// missed pre-market trigger left it absent.
func (p *Pipeline) filtered(ctx context.Context, today string) (types.GapFilterResult, error) {
	if p.store.HasFiltered(today) {
		return p.store.LoadFiltered(today)
	}

	p.logger.Info("Filtered candidates missing, running pre-market filter", zap.String("trade_date", today))

	return p.RunPremarket(ctx)
}

// RunMonitorStart reconciles the position table with the broker and starts
// the monitor on the result. A running monitor only gets fresh indicators.
func (p *Pipeline) RunMonitorStart(ctx context.Context) (ReconcileReport, error) {
	if p.monitor.Running() {
		return ReconcileReport{}, p.pushIndicators()
	}

	report, held, err := p.Reconcile(ctx)
	if err != nil {
		return report, err
	}

	if err := p.monitor.Start(ctx, held); err != nil && !errors.HasCode(err, errors.ErrCodeMonitorRunning) {
		return report, err
	}

	return report, p.pushIndicators()
}

// pushIndicators hands the latest scan's indicator values to the monitor for
// the regime guard.
func (p *Pipeline) pushIndicators() error {
	batch, ok := p.latestBatch(p.calendar.Date(p.now()))
	if !ok {
		return nil
	}

	values := make(map[string]types.IndicatorValues, len(batch.Indicators)+len(batch.Candidates))
	for _, c := range batch.Candidates {
		if len(c.Indicators) > 0 {
			values[c.Symbol] = c.Indicators
		}
	}

	for symbol, v := range batch.Indicators {
		values[symbol] = v
	}

	if len(values) == 0 {
		return nil
	}

	return p.monitor.UpdateIndicators(values)
}

// latestBatch returns today's batch, or the most recent earlier one.
func (p *Pipeline) latestBatch(today string) (types.BatchResult, bool) {
	batch, err := p.store.LoadBatch(today)
	if err == nil {
		return batch, true
	}

	batch, err = p.store.LatestBatchBefore(today)
	if err != nil {
		return types.BatchResult{}, false
	}

	return batch, true
}

// RunEndOfDay stops the monitor and writes the day's position snapshot.
func (p *Pipeline) RunEndOfDay(_ context.Context) (types.DailySnapshot, error) {
	now := p.now()
	if !p.calendar.IsTradingDay(now) {
		return types.DailySnapshot{}, errors.New(errors.ErrCodeStageSkipped, "not a trading day")
	}

	p.monitor.Stop()

	snapshot := types.DailySnapshot{
		SchemaVersion: version.SchemaVersion,
		Timestamp:     now,
		TradeDate:     p.calendar.Date(now),
		Positions:     p.monitor.Snapshots(),
	}

	if err := p.store.SaveSnapshot(snapshot); err != nil {
		return types.DailySnapshot{}, err
	}

	total := 0.0
	for _, s := range snapshot.Positions {
		total += s.UnrealizedPnL
	}

	p.logger.Info("End of day snapshot written",
		zap.String("trade_date", snapshot.TradeDate),
		zap.Int("positions", len(snapshot.Positions)),
		zap.Float64("unrealized_pnl", total),
	)

	return snapshot, nil
}
