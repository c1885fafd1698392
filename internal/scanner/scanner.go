package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-batch/internal/fetcher"
	"github.com/rxtech-lab/argo-batch/internal/indicator"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/regime"
	"github.com/rxtech-lab/argo-batch/internal/strategy"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// ATRKey is the indicator the scanner copies into ScanResult.ATR.
const ATRKey = "atr_14"

type Config struct {
	HistoryDays   int
	Workers       int
	MaxAttempts   int
	RetryInterval time.Duration
	// Benchmark is fetched alongside the universe for regime detection.
	Benchmark string
	// Params holds per strategy parameters keyed by strategy name.
	Params map[string]map[string]float64
}

// Result is the output of one successful scan.
type Result struct {
	Results       []types.ScanResult
	Regime        types.Regime
	RegimeSignals map[string]float64
	// Indicators holds the latest indicator values of every evaluated symbol.
	Indicators    map[string]types.IndicatorValues
	UniverseSize  int
	FailedSymbols []string
	ErrorCount    int
	Duration      time.Duration
	Attempts      int
}

// NightlyScanner computes indicators and evaluates every enabled strategy
// over the universe.
type NightlyScanner struct {
	fetcher    *fetcher.BatchFetcher
	indicators indicator.IndicatorRegistry
	strategies *strategy.Registry
	detector   *regime.Detector
	config     Config
	logger     *logger.Logger
}

func New(
	f *fetcher.BatchFetcher,
	indicators indicator.IndicatorRegistry,
	strategies *strategy.Registry,
	detector *regime.Detector,
	config Config,
	log *logger.Logger,
) *NightlyScanner {
	if config.Workers <= 0 {
		config.Workers = 1
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	return &NightlyScanner{
		fetcher:    f,
		indicators: indicators,
		strategies: strategies,
		detector:   detector,
		config:     config,
		logger:     log.Component("scanner"),
	}
}

type evaluation struct {
	results []types.ScanResult
	values  types.IndicatorValues
	err     error
	symbol  string
}

// Scan runs one attempt over symbols. Symbols that cannot be fetched or lack
// history are omitted and counted; the scan fails only when no symbol is usable.
func (s *NightlyScanner) Scan(ctx context.Context, symbols []string, progress fetcher.Progress) (Result, error) {
	start := time.Now()

	request := symbols
	if s.config.Benchmark != "" && !contains(symbols, s.config.Benchmark) {
		request = append(append([]string(nil), symbols...), s.config.Benchmark)
	}

	histories, err := s.fetcher.FetchHistory(ctx, request, s.config.HistoryDays, progress)

	var partial *errors.PartialFetchError

	failed := map[string]struct{}{}

	switch {
	case err == nil:
	case errors.As(err, &partial):
		for _, symbol := range partial.Symbols() {
			failed[symbol] = struct{}{}
		}
	default:
		return Result{}, errors.Wrap(errors.ErrCodeScanFailure, "history fetch failed", err)
	}

	result := Result{
		Results:       nil,
		Regime:        types.RegimeUnknown,
		RegimeSignals: map[string]float64{},
		Indicators:    map[string]types.IndicatorValues{},
		UniverseSize:  len(symbols),
		FailedSymbols: nil,
		ErrorCount:    0,
		Duration:      0,
		Attempts:      1,
	}

	result.Regime, result.RegimeSignals = s.detectRegime(histories)

	usable := make([]string, 0, len(symbols))

	for _, symbol := range symbols {
		if _, ok := histories[symbol]; ok {
			usable = append(usable, symbol)
		}
	}

	if len(symbols) > 0 && len(usable) == 0 {
		return Result{}, errors.Newf(errors.ErrCodeScanFailure, "no usable history for any of %d symbols", len(symbols))
	}

	jobs := make(chan string)
	evaluations := make(chan evaluation)

	var wg sync.WaitGroup

	for range s.config.Workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for symbol := range jobs {
				found, values, err := s.evaluate(symbol, histories[symbol], result.Regime)
				evaluations <- evaluation{results: found, values: values, err: err, symbol: symbol}
			}
		}()
	}

	go func() {
		defer close(jobs)

		for _, symbol := range usable {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(evaluations)
	}()

	for ev := range evaluations {
		if ev.err != nil {
			s.logger.Warn("Symbol evaluation failed", zap.String("symbol", ev.symbol), zap.Error(ev.err))
			failed[ev.symbol] = struct{}{}

			continue
		}

		result.Results = append(result.Results, ev.results...)
		result.Indicators[ev.symbol] = ev.values
	}

	if err := ctx.Err(); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeScanFailure, "scan interrupted", err)
	}

	for _, symbol := range symbols {
		if _, ok := failed[symbol]; ok {
			result.FailedSymbols = append(result.FailedSymbols, symbol)
		}
	}

	sort.SliceStable(result.Results, func(i, j int) bool {
		if result.Results[i].Symbol != result.Results[j].Symbol {
			return result.Results[i].Symbol < result.Results[j].Symbol
		}

		return result.Results[i].Strategy < result.Results[j].Strategy
	})

	result.ErrorCount = len(result.FailedSymbols)
	result.Duration = time.Since(start)

	s.logger.Info("Scan completed",
		zap.Int("universe", result.UniverseSize),
		zap.Int("signals", len(result.Results)),
		zap.Int("errors", result.ErrorCount),
		zap.String("regime", string(result.Regime)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// ScanWithRetry repeats Scan with exponential backoff up to MaxAttempts.
// The returned error carries ErrCodeScanFailure once every attempt failed.
func (s *NightlyScanner) ScanWithRetry(ctx context.Context, symbols []string, progress fetcher.Progress) (Result, error) {
	policy := backoff.NewExponentialBackOff()
	if s.config.RetryInterval > 0 {
		policy.InitialInterval = s.config.RetryInterval
	}

	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempts := 0

	var result Result

	operation := func() error {
		attempts++

		r, err := s.Scan(ctx, symbols, progress)
		if err != nil {
			return err
		}

		result = r

		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Scan attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.config.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, retry, notify); err != nil {
		return Result{}, errors.Wrapf(errors.ErrCodeScanFailure, err, "scan failed after %d attempts", attempts)
	}

	result.Attempts = attempts

	return result, nil
}

func (s *NightlyScanner) detectRegime(histories map[string][]types.Bar) (types.Regime, map[string]float64) {
	if s.detector == nil || s.config.Benchmark == "" {
		return types.RegimeUnknown, map[string]float64{}
	}

	bars, ok := histories[s.config.Benchmark]
	if !ok {
		s.logger.Warn("Benchmark history unavailable, regime unknown", zap.String("benchmark", s.config.Benchmark))

		return types.RegimeUnknown, map[string]float64{}
	}

	detected, err := s.detector.Detect(bars)
	if err != nil {
		s.logger.Warn("Regime detection failed", zap.String("benchmark", s.config.Benchmark), zap.Error(err))

		return types.RegimeUnknown, map[string]float64{}
	}

	return detected.Regime, detected.Signals
}

func (s *NightlyScanner) evaluate(symbol string, history []types.Bar, marketRegime types.Regime) ([]types.ScanResult, types.IndicatorValues, error) {
	last, ok := types.LastBar(history)
	if !ok {
		return nil, nil, errors.NewInsufficientDataError(1, 0, symbol, "no bars")
	}

	values, err := s.indicators.ComputeAll(history)
	if err != nil {
		return nil, nil, err
	}

	atr, ok := values.Get(ATRKey)
	if !ok || atr <= 0 {
		return nil, nil, errors.NewInsufficientDataErrorf(0, len(history), symbol, "%s unavailable for %s", ATRKey, symbol)
	}

	var out []types.ScanResult

	for _, strat := range s.strategies.Strategies() {
		sig, err := strat.Evaluate(strategy.Context{
			Symbol:     symbol,
			History:    history,
			Indicators: values,
			Regime:     marketRegime,
			Params:     s.config.Params[strat.Name()],
		})
		if err != nil {
			s.logger.Debug("Strategy evaluation failed",
				zap.String("symbol", symbol),
				zap.String("strategy", strat.Name()),
				zap.Error(err),
			)

			continue
		}

		if sig.IsNone() {
			continue
		}

		signal := sig.Unwrap()

		metadata := make(map[string]string, len(signal.Metadata)+1)
		for k, v := range signal.Metadata {
			metadata[k] = v
		}

		if signal.Reason != "" {
			metadata["reason"] = signal.Reason
		}

		out = append(out, types.ScanResult{
			Symbol:     symbol,
			Strategy:   strat.Name(),
			Direction:  signal.Direction,
			Strength:   signal.Strength,
			PrevClose:  last.Close,
			ATR:        atr,
			Volume:     last.Volume,
			Indicators: values.Clone(),
			Metadata:   metadata,
		})
	}

	return out, values, nil
}

func contains(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}

	return false
}
