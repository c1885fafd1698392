package broker

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/utils"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

const (
	// BinanceDecimalPrecision is a default decimal precision used as a fallback.
	// Production systems should use symbol-specific precision from exchange info (LOT_SIZE).
	BinanceDecimalPrecision = 8

	binanceMaxKlines     = 1000
	binanceDailyInterval = "1d"
	binanceLiveInterval  = "1m"
	defaultQuoteAsset    = "USDT"
)

// BinanceMarketData serves klines and prices from Binance spot.
type BinanceMarketData struct {
	client BinanceClient
	ws     BinanceWebSocketService
	logger *logger.Logger
}

// NewBinanceMarketData creates a Binance market data provider. Public
// endpoints need no credentials.
func NewBinanceMarketData(cfg config.BinanceConfig, log *logger.Logger) *BinanceMarketData {
	return NewBinanceMarketDataWithClients(&realBinanceClient{client: newBinanceClient(cfg)}, realBinanceWebSocket{}, log)
}

// NewBinanceMarketDataWithClients creates a provider with injected clients.
func NewBinanceMarketDataWithClients(client BinanceClient, ws BinanceWebSocketService, log *logger.Logger) *BinanceMarketData {
	return &BinanceMarketData{client: client, ws: ws, logger: log.Component("binance")}
}

func newBinanceClient(cfg config.BinanceConfig) *binance.Client {
	if cfg.Testnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return client
}

// FetchBars implements MarketData.
func (b *BinanceMarketData) FetchBars(ctx context.Context, symbols []string, days int) (BarsResponse, error) {
	resp := NewBarsResponse()
	limit := min(max(days, 1), binanceMaxKlines)

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return resp, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "bar fetch cancelled", err)
		}

		klines, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(binanceDailyInterval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			resp.Errors[symbol] = errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines for %s", symbol)

			continue
		}

		bars, err := klinesToBars(symbol, klines)
		if err != nil {
			resp.Errors[symbol] = err

			continue
		}

		resp.Bars[symbol] = bars
	}

	return resp, nil
}

// FetchLatestPrices implements MarketData.
func (b *BinanceMarketData) FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	quotes, err := b.client.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to fetch prices from Binance", err)
	}

	for _, q := range quotes {
		price, parseErr := strconv.ParseFloat(q.Price, 64)
		if parseErr != nil || price <= 0 {
			b.logger.Warn("Ignoring unparseable price", zap.String("symbol", q.Symbol), zap.String("price", q.Price))

			continue
		}

		prices[q.Symbol] = price
	}

	return prices, nil
}

// SubscribePrices implements MarketData with one kline stream per symbol.
// Every kline update, final or not, is yielded as the latest price.
func (b *BinanceMarketData) SubscribePrices(ctx context.Context, symbols []string) iter.Seq2[types.PriceUpdate, error] {
	return func(yield func(types.PriceUpdate, error) bool) {
		if len(symbols) == 0 {
			yield(types.PriceUpdate{}, errors.New(errors.ErrCodeInvalidParameter, "at least one symbol is required"))

			return
		}

		done := make(chan struct{})
		updates := make(chan types.PriceUpdate, 64)
		errC := make(chan error, len(symbols))

		var stops []chan struct{}

		var once sync.Once

		stopAll := func() {
			once.Do(func() {
				close(done)

				for _, stopC := range stops {
					close(stopC)
				}
			})
		}
		defer stopAll()

		handler := func(event *binance.WsKlineEvent) {
			update, err := wsKlineToPriceUpdate(event)
			if err != nil {
				b.logger.Warn("Dropping malformed kline event", zap.Error(err))

				return
			}

			select {
			case updates <- update:
			case <-done:
			}
		}

		errHandler := func(err error) {
			select {
			case errC <- err:
			default:
			}
		}

		for _, symbol := range symbols {
			_, stopC, err := b.ws.WsKlineServe(symbol, binanceLiveInterval, handler, errHandler)
			if err != nil {
				yield(types.PriceUpdate{}, errors.Wrapf(errors.ErrCodeStreamFailed, err, "failed to start websocket for %s", symbol))

				return
			}

			stops = append(stops, stopC)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errC:
				yield(types.PriceUpdate{}, errors.Wrap(errors.ErrCodeStreamFailed, "websocket error", err))

				return
			case update := <-updates:
				if !yield(update, nil) {
					return
				}
			}
		}
	}
}

func klinesToBars(symbol string, klines []*binance.Kline) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(klines))

	for _, k := range klines {
		values, err := parseFloats(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid kline for %s", symbol)
		}

		bars = append(bars, types.Bar{
			Symbol: symbol,
			Time:   time.UnixMilli(k.OpenTime),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	return bars, nil
}

func wsKlineToPriceUpdate(event *binance.WsKlineEvent) (types.PriceUpdate, error) {
	if event == nil {
		return types.PriceUpdate{}, errors.New(errors.ErrCodeMarketDataParseFailed, "nil kline event")
	}

	price, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil {
		return types.PriceUpdate{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "invalid close price", err)
	}

	return types.PriceUpdate{
		Symbol: event.Symbol,
		Price:  price,
		Time:   time.UnixMilli(event.Time),
	}, nil
}

func parseFloats(values ...string) ([]float64, error) {
	out := make([]float64, len(values))

	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}

		out[i] = f
	}

	return out, nil
}

// BinanceTrading implements Trading using the Binance spot API.
// It is stateless - all data is fetched directly from the Binance API.
type BinanceTrading struct {
	client           BinanceClient
	decimalPrecision int
	quoteAsset       string
	logger           *logger.Logger
}

// NewBinanceTrading creates a Binance trading provider.
// If cfg.BaseURL is set, it takes precedence over cfg.Testnet.
func NewBinanceTrading(cfg config.BinanceConfig, log *logger.Logger) (*BinanceTrading, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "binance trading requires api and secret keys")
	}

	return NewBinanceTradingWithClient(&realBinanceClient{client: newBinanceClient(cfg)}, cfg.QuoteAsset, log), nil
}

// NewBinanceTradingWithClient creates a provider with an injected client.
func NewBinanceTradingWithClient(client BinanceClient, quoteAsset string, log *logger.Logger) *BinanceTrading {
	if quoteAsset == "" {
		quoteAsset = defaultQuoteAsset
	}

	return &BinanceTrading{
		client:           client,
		decimalPrecision: BinanceDecimalPrecision,
		quoteAsset:       quoteAsset,
		logger:           log.Component("binance"),
	}
}

// SubmitOrder implements Trading. The client order id is forwarded so the
// exchange rejects duplicates of the same logical order.
func (b *BinanceTrading) SubmitOrder(ctx context.Context, order types.ExecuteOrder) (types.OrderAck, error) {
	if err := order.Validate(); err != nil {
		return types.OrderAck{}, err
	}

	if order.Purpose == types.OrderPurposeEntry && order.Side == types.PurchaseTypeSell {
		return types.OrderAck{}, errors.New(errors.ErrCodeOrderRejected, "binance spot does not support short entries")
	}

	side := binance.SideTypeBuy
	if order.Side == types.PurchaseTypeSell {
		side = binance.SideTypeSell
	}

	orderType := binance.OrderTypeMarket
	if order.OrderType == types.OrderTypeLimit {
		orderType = binance.OrderTypeLimit
	}

	roundedQuantity := utils.RoundToDecimalPrecision(order.Quantity, b.decimalPrecision)
	if roundedQuantity <= 0 {
		return types.OrderAck{}, errors.Newf(errors.ErrCodeInvalidOrder,
			"order quantity %.8f is too small after rounding to %d decimal places",
			order.Quantity, b.decimalPrecision)
	}

	service := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(orderType).
		Quantity(utils.FormatQuantity(roundedQuantity, b.decimalPrecision)).
		NewClientOrderID(order.ClientOrderID)

	if order.OrderType == types.OrderTypeLimit {
		service = service.
			Price(strconv.FormatFloat(order.Price, 'f', -1, 64)).
			TimeInForce(binance.TimeInForceTypeGTC)
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return types.OrderAck{}, errors.Wrap(errors.ErrCodeOrderSubmission, "failed to place order on Binance", err)
	}

	return types.OrderAck{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Status:        mapBinanceOrderStatus(resp.Status),
	}, nil
}

// GetOrder implements Trading.
func (b *BinanceTrading) GetOrder(ctx context.Context, symbol string, orderID string) (types.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	bo, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeOrderFailed, "failed to get order from Binance", err)
	}

	return convertBinanceOrder(bo), nil
}

// CancelOrder implements Trading.
func (b *BinanceTrading) CancelOrder(ctx context.Context, symbol string, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "failed to cancel order on Binance", err)
	}

	return nil
}

// GetPositions implements Trading. Non-quote balances map to long positions
// in <asset><quote>; spot has no entry price so AvgEntryPrice is zero.
func (b *BinanceTrading) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeOrderFailed, "failed to get account info from Binance", err)
	}

	positions := make([]types.BrokerPosition, 0)

	for _, balance := range account.Balances {
		if strings.EqualFold(balance.Asset, b.quoteAsset) {
			continue
		}

		free, _ := strconv.ParseFloat(balance.Free, 64)
		locked, _ := strconv.ParseFloat(balance.Locked, 64)

		if total := free + locked; total > 0 {
			positions = append(positions, types.BrokerPosition{
				Symbol:        balance.Asset + b.quoteAsset,
				Quantity:      total,
				AvgEntryPrice: 0,
			})
		}
	}

	return positions, nil
}

// GetAccount implements Trading. Balance and buying power are in the quote asset.
func (b *BinanceTrading) GetAccount(ctx context.Context) (types.AccountInfo, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return types.AccountInfo{}, errors.Wrap(errors.ErrCodeOrderFailed, "failed to get account info from Binance", err)
	}

	var totalBalance, buyingPower float64

	for _, balance := range account.Balances {
		if !strings.EqualFold(balance.Asset, b.quoteAsset) {
			continue
		}

		free, _ := strconv.ParseFloat(balance.Free, 64)
		locked, _ := strconv.ParseFloat(balance.Locked, 64)
		totalBalance += free + locked
		buyingPower += free
	}

	return types.AccountInfo{
		Balance:       totalBalance,
		Equity:        totalBalance,
		BuyingPower:   buyingPower,
		RealizedPnL:   0,
		UnrealizedPnL: 0,
	}, nil
}

// mapBinanceOrderStatus maps Binance order status to our OrderStatus type.
func mapBinanceOrderStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.OrderStatusPending
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return types.OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	case binance.OrderStatusTypeExpired, binance.OrderStatusTypePendingCancel:
		return types.OrderStatusFailed
	default:
		return types.OrderStatusFailed
	}
}

func convertBinanceOrder(bo *binance.Order) types.Order {
	quantity, _ := strconv.ParseFloat(bo.OrigQuantity, 64)
	filled, _ := strconv.ParseFloat(bo.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(bo.CummulativeQuoteQuantity, 64)

	var avg float64
	if filled > 0 {
		avg = quote / filled
	}

	side := types.PurchaseTypeBuy
	if bo.Side == binance.SideTypeSell {
		side = types.PurchaseTypeSell
	}

	return types.Order{
		OrderID:       strconv.FormatInt(bo.OrderID, 10),
		ClientOrderID: bo.ClientOrderID,
		Symbol:        bo.Symbol,
		Side:          side,
		Quantity:      quantity,
		FilledQty:     filled,
		AvgFillPrice:  avg,
		Status:        mapBinanceOrderStatus(bo.Status),
		UpdatedAt:     time.UnixMilli(bo.UpdateTime),
	}
}

var (
	_ MarketData = (*BinanceMarketData)(nil)
	_ Trading    = (*BinanceTrading)(nil)
)
