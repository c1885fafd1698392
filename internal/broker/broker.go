package broker

import (
	"context"
	"iter"

	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// ProviderType names a market data or trading backend.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
	ProviderPaper   ProviderType = "paper"
)

// BarsResponse carries daily bars per symbol plus per-symbol failures.
// A symbol is in at most one of the two maps.
type BarsResponse struct {
	Bars   map[string][]types.Bar
	Errors map[string]error
}

// NewBarsResponse returns an empty response with both maps allocated.
func NewBarsResponse() BarsResponse {
	return BarsResponse{
		Bars:   make(map[string][]types.Bar),
		Errors: make(map[string]error),
	}
}

// MarketData is the read side of a broker.
type MarketData interface {
	// FetchBars returns up to days daily bars per symbol, oldest first.
	// A symbol that fails individually goes to BarsResponse.Errors; the
	// returned error is reserved for failures of the whole request.
	FetchBars(ctx context.Context, symbols []string, days int) (BarsResponse, error)
	// FetchLatestPrices returns the latest trade price per symbol.
	// Symbols without a price are absent from the map.
	FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	// SubscribePrices streams live price updates until ctx is cancelled or the
	// stream fails. A yielded error ends the stream.
	SubscribePrices(ctx context.Context, symbols []string) iter.Seq2[types.PriceUpdate, error]
}

// Trading is the order side of a broker.
type Trading interface {
	SubmitOrder(ctx context.Context, order types.ExecuteOrder) (types.OrderAck, error)
	GetOrder(ctx context.Context, symbol string, orderID string) (types.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID string) error
	GetPositions(ctx context.Context) ([]types.BrokerPosition, error)
	GetAccount(ctx context.Context) (types.AccountInfo, error)
}

// Broker combines market data and trading, which may come from different providers.
type Broker interface {
	MarketData
	Trading
}

type composite struct {
	MarketData
	Trading
}

// Compose joins a market data provider and a trading provider.
func Compose(md MarketData, tr Trading) Broker {
	return composite{MarketData: md, Trading: tr}
}

// New builds the broker described by cfg.
func New(cfg config.BrokerConfig, log *logger.Logger) (Broker, error) {
	md, err := NewMarketData(cfg, log)
	if err != nil {
		return nil, err
	}

	tr, err := NewTrading(cfg, md, log)
	if err != nil {
		return nil, err
	}

	return Compose(md, tr), nil
}

// NewMarketData builds the configured market data provider.
func NewMarketData(cfg config.BrokerConfig, log *logger.Logger) (MarketData, error) {
	switch ProviderType(cfg.MarketData) {
	case ProviderPolygon:
		return NewPolygonMarketData(cfg.Polygon.APIKey, log)
	case ProviderBinance:
		return NewBinanceMarketData(cfg.Binance, log), nil
	case ProviderPaper:
		return NewPaperFeed(cfg.Paper, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", cfg.MarketData)
	}
}

// NewTrading builds the configured trading provider. Paper trading fills
// against prices from md.
func NewTrading(cfg config.BrokerConfig, md MarketData, log *logger.Logger) (Trading, error) {
	switch ProviderType(cfg.Trading) {
	case ProviderBinance:
		return NewBinanceTrading(cfg.Binance, log)
	case ProviderPaper:
		return NewPaperTrading(cfg.Paper, md, log), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported trading provider: %s", cfg.Trading)
	}
}
