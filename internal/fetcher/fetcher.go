package fetcher

import (
	"context"
	"sort"

	"github.com/rxtech-lab/argo-batch/internal/broker"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls batching and pacing of provider requests.
type Config struct {
	BatchSize         int
	RequestsPerSecond float64
	Burst             int
	// MinHistory is the number of bars a symbol needs to be kept.
	MinHistory int
}

// BatchFetcher retrieves history and latest prices for a universe in paced
// batches. A failing symbol or batch never fails the whole fetch.
type BatchFetcher struct {
	md      broker.MarketData
	config  Config
	limiter *rate.Limiter
	logger  *logger.Logger
}

// Progress is called after every batch with the number of symbols processed so far.
type Progress func(done, total int)

func New(md broker.MarketData, config Config, log *logger.Logger) *BatchFetcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}

	if config.Burst <= 0 {
		config.Burst = 1
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &BatchFetcher{
		md:      md,
		config:  config,
		limiter: rate.NewLimiter(limit, config.Burst),
		logger:  log.Component("fetcher"),
	}
}

// FetchHistory returns daily bars for every symbol that could be fetched with
// at least MinHistory bars. When some symbols were omitted the returned error
// is a *errors.PartialFetchError alongside the usable result. The call fails
// outright only when every batch failed or ctx ended.
func (f *BatchFetcher) FetchHistory(ctx context.Context, symbols []string, days int, progress Progress) (map[string][]types.Bar, error) {
	out := make(map[string][]types.Bar, len(symbols))
	failed := make(map[string]error)

	batches := chunk(dedupe(symbols), f.config.BatchSize)
	batchFailures := 0
	done := 0

	var lastErr error

	for i, batch := range batches {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "history fetch interrupted", err)
		}

		resp, err := f.md.FetchBars(ctx, batch, days)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "history fetch interrupted", err)
			}

			f.logger.Warn("Batch fetch failed",
				zap.Int("batch", i),
				zap.Int("symbols", len(batch)),
				zap.Error(err),
			)

			for _, symbol := range batch {
				failed[symbol] = err
			}

			batchFailures++
			lastErr = err
		} else {
			f.collect(batch, resp, out, failed)
		}

		done += len(batch)
		if progress != nil {
			progress(done, len(symbols))
		}
	}

	if len(batches) > 0 && batchFailures == len(batches) {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "every history batch failed", lastErr)
	}

	if partial := errors.NewPartialFetchError(failed); partial != nil {
		f.logger.Warn("Partial fetch failure",
			zap.Int("fetched", len(out)),
			zap.Int("failed", len(failed)),
			zap.Strings("symbols", sorted(partial.Symbols())),
		)

		return out, partial
	}

	return out, nil
}

func (f *BatchFetcher) collect(batch []string, resp broker.BarsResponse, out map[string][]types.Bar, failed map[string]error) {
	for _, symbol := range batch {
		if err, ok := resp.Errors[symbol]; ok {
			f.logger.Debug("Symbol fetch failed", zap.String("symbol", symbol), zap.Error(err))
			failed[symbol] = err

			continue
		}

		bars, ok := resp.Bars[symbol]
		if !ok || len(bars) == 0 {
			failed[symbol] = errors.Newf(errors.ErrCodeDataNotFound, "no bars returned for %s", symbol)

			continue
		}

		if len(bars) < f.config.MinHistory {
			failed[symbol] = errors.NewInsufficientDataErrorf(f.config.MinHistory, len(bars), symbol,
				"%s has %d bars, need %d", symbol, len(bars), f.config.MinHistory)

			continue
		}

		out[symbol] = bars
	}
}

// FetchLatestPrices returns the latest price per symbol in paced batches.
// Symbols whose batch failed are simply absent; the error is returned only
// when no batch succeeded.
func (f *BatchFetcher) FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	batches := chunk(dedupe(symbols), f.config.BatchSize)
	failures := 0

	var lastErr error

	for _, batch := range batches {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "price fetch interrupted", err)
		}

		prices, err := f.md.FetchLatestPrices(ctx, batch)
		if err != nil {
			f.logger.Warn("Price batch failed", zap.Strings("symbols", batch), zap.Error(err))

			failures++
			lastErr = err

			continue
		}

		for symbol, price := range prices {
			out[symbol] = price
		}
	}

	if len(batches) > 0 && failures == len(batches) {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "every price batch failed", lastErr)
	}

	return out, nil
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string

	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		out = append(out, symbols[start:end])
	}

	return out
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))

	for _, s := range symbols {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

func sorted(symbols []string) []string {
	sort.Strings(symbols)

	return symbols
}
