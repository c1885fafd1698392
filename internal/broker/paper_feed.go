package broker

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// PaperFeed is an offline market data provider. Daily bars come from a
// parquet or csv dataset loaded into an in-memory DuckDB view; live prices
// are either set explicitly or fall back to the dataset's latest close.
type PaperFeed struct {
	db           *sql.DB
	sq           squirrel.StatementBuilderType
	loaded       bool
	mu           sync.RWMutex
	prices       map[string]float64
	pollInterval time.Duration
	now          func() time.Time
	logger       *logger.Logger
}

// NewPaperFeed opens an in-memory DuckDB and loads cfg.DataPath when set.
func NewPaperFeed(cfg config.PaperConfig, log *logger.Logger) (*PaperFeed, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	feed := &PaperFeed{
		db:           db,
		sq:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		loaded:       false,
		prices:       make(map[string]float64),
		pollInterval: poll,
		now:          time.Now,
		logger:       log.Component("paper_feed"),
	}

	if cfg.DataPath != "" {
		if err := feed.Load(cfg.DataPath); err != nil {
			db.Close()

			return nil, err
		}
	}

	return feed, nil
}

// Load replaces the dataset with the file at path. The file needs the
// columns symbol, time, open, high, low, close and volume.
func (f *PaperFeed) Load(path string) error {
	reader := "read_parquet"
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		reader = "read_csv_auto"
	}

	// squirrel has no CREATE VIEW builder
	query := fmt.Sprintf(`CREATE OR REPLACE VIEW market_data AS SELECT * FROM %s('%s');`,
		reader, strings.ReplaceAll(path, "'", "''"))

	if _, err := f.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to load dataset %s", path)
	}

	f.mu.Lock()
	f.loaded = true
	f.mu.Unlock()

	f.logger.Info("Loaded paper dataset", zap.String("path", path))

	return nil
}

// SetPrice sets the live price returned for symbol.
func (f *PaperFeed) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prices[symbol] = price
}

// ClearPrice removes an explicitly set price.
func (f *PaperFeed) ClearPrice(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.prices, symbol)
}

// Close releases the DuckDB handle.
func (f *PaperFeed) Close() error {
	return f.db.Close()
}

// FetchBars implements MarketData.
func (f *PaperFeed) FetchBars(ctx context.Context, symbols []string, days int) (BarsResponse, error) {
	resp := NewBarsResponse()

	f.mu.RLock()
	loaded := f.loaded
	f.mu.RUnlock()

	for _, symbol := range symbols {
		if !loaded {
			resp.Errors[symbol] = errors.New(errors.ErrCodeDataNotFound, "no paper dataset loaded")

			continue
		}

		bars, err := f.readBars(ctx, symbol, days)
		if err != nil {
			resp.Errors[symbol] = err

			continue
		}

		if len(bars) == 0 {
			resp.Errors[symbol] = errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s", symbol)

			continue
		}

		resp.Bars[symbol] = bars
	}

	return resp, nil
}

func (f *PaperFeed) readBars(ctx context.Context, symbol string, days int) ([]types.Bar, error) {
	builder := f.sq.
		Select("time", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time DESC")
	if days > 0 {
		builder = builder.Limit(uint64(days))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bars query", err)
	}

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query bars for %s", symbol)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0, days)

	for rows.Next() {
		bar := types.Bar{Symbol: symbol}
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to scan bar for %s", symbol)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read bars for %s", symbol)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	return bars, nil
}

// FetchLatestPrices implements MarketData.
func (f *PaperFeed) FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))

	f.mu.RLock()
	loaded := f.loaded
	for _, symbol := range symbols {
		if p, ok := f.prices[symbol]; ok {
			prices[symbol] = p
		}
	}
	f.mu.RUnlock()

	if !loaded {
		return prices, nil
	}

	for _, symbol := range symbols {
		if _, ok := prices[symbol]; ok {
			continue
		}

		bars, err := f.readBars(ctx, symbol, 1)
		if err != nil {
			return nil, err
		}

		if len(bars) == 1 {
			prices[symbol] = bars[0].Close
		}
	}

	return prices, nil
}

// SubscribePrices implements MarketData by polling FetchLatestPrices.
func (f *PaperFeed) SubscribePrices(ctx context.Context, symbols []string) iter.Seq2[types.PriceUpdate, error] {
	return func(yield func(types.PriceUpdate, error) bool) {
		if len(symbols) == 0 {
			yield(types.PriceUpdate{}, errors.New(errors.ErrCodeInvalidParameter, "at least one symbol is required"))

			return
		}

		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()

		for {
			prices, err := f.FetchLatestPrices(ctx, symbols)
			if err != nil {
				yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "paper feed poll failed", err))

				return
			}

			now := f.now()
			for _, symbol := range symbols {
				price, ok := prices[symbol]
				if !ok {
					continue
				}

				if !yield(types.PriceUpdate{Symbol: symbol, Price: price, Time: now}, nil) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

var _ MarketData = (*PaperFeed)(nil)
