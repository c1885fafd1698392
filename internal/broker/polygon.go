package broker

import (
	"context"
	"iter"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	polygonws "github.com/polygon-io/client-go/websocket"
	wsmodels "github.com/polygon-io/client-go/websocket/models"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// PolygonRESTClient is the slice of the Polygon REST API the broker uses.
type PolygonRESTClient interface {
	DailyAggs(ctx context.Context, ticker string, from, to time.Time) ([]models.Agg, error)
	Snapshot(ctx context.Context, tickers []string) ([]models.TickerSnapshot, error)
}

// PolygonWebSocketService abstracts the Polygon websocket client for testing.
type PolygonWebSocketService interface {
	Connect() error
	Subscribe(topic polygonws.Topic, tickers ...string) error
	Unsubscribe(topic polygonws.Topic, tickers ...string) error
	Output() <-chan any
	Error() <-chan error
	Close()
}

type realPolygonClient struct {
	client *polygon.Client
}

func (c *realPolygonClient) DailyAggs(ctx context.Context, ticker string, from, to time.Time) ([]models.Agg, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithAdjusted(true).WithLimit(50000)

	aggs := make([]models.Agg, 0)

	it := c.client.ListAggs(ctx, params)
	for it.Next() {
		aggs = append(aggs, it.Item())
	}

	if it.Err() != nil {
		return nil, it.Err()
	}

	return aggs, nil
}

func (c *realPolygonClient) Snapshot(ctx context.Context, tickers []string) ([]models.TickerSnapshot, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.GetAllTickersSnapshotParams{
		Locale:     models.US,
		MarketType: models.Stocks,
	}.WithTickers(strings.Join(tickers, ","))

	resp, err := c.client.GetAllTickersSnapshot(ctx, params)
	if err != nil {
		return nil, err
	}

	return resp.Tickers, nil
}

// PolygonMarketData serves US equity bars, snapshots and minute aggregates from Polygon.io.
type PolygonMarketData struct {
	rest   PolygonRESTClient
	newWS  func() (PolygonWebSocketService, error)
	now    func() time.Time
	logger *logger.Logger
}

// NewPolygonMarketData creates a Polygon market data provider.
func NewPolygonMarketData(apiKey string, log *logger.Logger) (*PolygonMarketData, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon apiKey is required")
	}

	newWS := func() (PolygonWebSocketService, error) {
		//nolint:exhaustruct // third-party struct with many optional fields
		return polygonws.New(polygonws.Config{
			APIKey: apiKey,
			Feed:   polygonws.RealTime,
			Market: polygonws.Stocks,
		})
	}

	return NewPolygonMarketDataWithClients(&realPolygonClient{client: polygon.New(apiKey)}, newWS, log), nil
}

// NewPolygonMarketDataWithClients creates a provider with injected clients.
func NewPolygonMarketDataWithClients(rest PolygonRESTClient, newWS func() (PolygonWebSocketService, error), log *logger.Logger) *PolygonMarketData {
	return &PolygonMarketData{
		rest:   rest,
		newWS:  newWS,
		now:    time.Now,
		logger: log.Component("polygon"),
	}
}

// FetchBars implements MarketData.
func (p *PolygonMarketData) FetchBars(ctx context.Context, symbols []string, days int) (BarsResponse, error) {
	resp := NewBarsResponse()
	to := p.now()
	from := to.AddDate(0, 0, -calendarSpan(days))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return resp, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "bar fetch cancelled", err)
		}

		aggs, err := p.rest.DailyAggs(ctx, symbol, from, to)
		if err != nil {
			resp.Errors[symbol] = errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch bars for %s", symbol)

			continue
		}

		bars := make([]types.Bar, 0, len(aggs))
		for _, agg := range aggs {
			bars = append(bars, types.Bar{
				Symbol: symbol,
				Time:   time.Time(agg.Timestamp),
				Open:   agg.Open,
				High:   agg.High,
				Low:    agg.Low,
				Close:  agg.Close,
				Volume: agg.Volume,
			})
		}

		resp.Bars[symbol] = lastN(bars, days)
	}

	return resp, nil
}

// FetchLatestPrices implements MarketData using the tickers snapshot endpoint.
func (p *PolygonMarketData) FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	snapshots, err := p.rest.Snapshot(ctx, symbols)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to fetch polygon snapshot", err)
	}

	for _, snap := range snapshots {
		switch {
		case snap.LastTrade.Price > 0:
			prices[snap.Ticker] = snap.LastTrade.Price
		case snap.Minute.Close > 0:
			prices[snap.Ticker] = snap.Minute.Close
		case snap.Day.Close > 0:
			prices[snap.Ticker] = snap.Day.Close
		default:
			p.logger.Debug("Snapshot has no usable price", zap.String("symbol", snap.Ticker))
		}
	}

	return prices, nil
}

// SubscribePrices implements MarketData by streaming per-minute aggregates.
func (p *PolygonMarketData) SubscribePrices(ctx context.Context, symbols []string) iter.Seq2[types.PriceUpdate, error] {
	return func(yield func(types.PriceUpdate, error) bool) {
		if len(symbols) == 0 {
			yield(types.PriceUpdate{}, errors.New(errors.ErrCodeInvalidParameter, "at least one symbol is required"))

			return
		}

		ws, err := p.newWS()
		if err != nil {
			yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "failed to create polygon websocket", err))

			return
		}

		if err := ws.Connect(); err != nil {
			yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "failed to connect polygon websocket", err))

			return
		}
		defer ws.Close()

		if err := ws.Subscribe(polygonws.StocksMinAggs, symbols...); err != nil {
			yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "failed to subscribe", err))

			return
		}

		p.logger.Info("Subscribed to minute aggregates", zap.Strings("symbols", symbols))

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-ws.Error():
				if !ok {
					return
				}

				yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "polygon websocket error", err))

				return
			case out, ok := <-ws.Output():
				if !ok {
					yield(types.PriceUpdate{}, errors.New(errors.ErrCodeStreamFailed, "polygon websocket closed"))

					return
				}

				agg, isAgg := out.(wsmodels.EquityAgg)
				if !isAgg {
					continue
				}

				update := types.PriceUpdate{
					Symbol: agg.Symbol,
					Price:  agg.Close,
					Time:   time.UnixMilli(agg.EndTimestamp),
				}
				if !yield(update, nil) {
					return
				}
			}
		}
	}
}

// calendarSpan converts a number of trading days into a calendar lookback
// wide enough to cover weekends and holidays.
func calendarSpan(tradingDays int) int {
	return tradingDays*7/5 + 10
}

func lastN(bars []types.Bar, n int) []types.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}

	return bars
}

var _ MarketData = (*PolygonMarketData)(nil)
