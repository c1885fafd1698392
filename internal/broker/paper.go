package broker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/store"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// paperState is the persisted paper account.
type paperState struct {
	Cash        float64                         `json:"cash"`
	RealizedPnL float64                         `json:"realized_pnl"`
	Positions   map[string]types.BrokerPosition `json:"positions"`
	Orders      map[string]types.Order          `json:"orders"`
	// Limits holds the limit price of resting orders by order id.
	Limits map[string]float64 `json:"limits"`
	// ClientIndex maps client order ids to broker order ids.
	ClientIndex map[string]string `json:"client_index"`
}

// PaperTrading simulates a broker account. Market orders fill immediately at
// the latest price plus slippage; limit orders rest until the price crosses.
type PaperTrading struct {
	mu          sync.Mutex
	prices      MarketData
	slippagePct float64
	statePath   string
	state       paperState
	newID       func() string
	now         func() time.Time
	logger      *logger.Logger
}

// NewPaperTrading creates a paper account priced by md. When cfg.StateFile
// exists the account is restored from it.
func NewPaperTrading(cfg config.PaperConfig, md MarketData, log *logger.Logger) *PaperTrading {
	p := &PaperTrading{
		prices:      md,
		slippagePct: cfg.SlippagePct,
		statePath:   cfg.StateFile,
		state: paperState{
			Cash:        cfg.StartingCash,
			RealizedPnL: 0,
			Positions:   make(map[string]types.BrokerPosition),
			Orders:      make(map[string]types.Order),
			Limits:      make(map[string]float64),
			ClientIndex: make(map[string]string),
		},
		newID:  uuid.NewString,
		now:    time.Now,
		logger: log.Component("paper"),
	}

	if p.statePath != "" {
		var saved paperState

		err := store.ReadJSON(p.statePath, &saved)

		switch {
		case err == nil:
			p.restore(saved)
			p.logger.Info("Restored paper account", zap.String("path", p.statePath), zap.Int("positions", len(saved.Positions)))
		case errors.HasCode(err, errors.ErrCodeArtifactNotFound):
		default:
			p.logger.Warn("Ignoring unreadable paper account", zap.String("path", p.statePath), zap.Error(err))
		}
	}

	return p
}

func (p *PaperTrading) restore(saved paperState) {
	p.state.Cash = saved.Cash
	p.state.RealizedPnL = saved.RealizedPnL

	for k, v := range saved.Positions {
		p.state.Positions[k] = v
	}

	for k, v := range saved.Orders {
		p.state.Orders[k] = v
	}

	for k, v := range saved.Limits {
		p.state.Limits[k] = v
	}

	for k, v := range saved.ClientIndex {
		p.state.ClientIndex[k] = v
	}
}

// SubmitOrder implements Trading. Resubmitting a known client order id
// returns the existing order instead of creating a new one.
func (p *PaperTrading) SubmitOrder(ctx context.Context, order types.ExecuteOrder) (types.OrderAck, error) {
	if err := order.Validate(); err != nil {
		return types.OrderAck{}, err
	}

	p.mu.Lock()
	if id, ok := p.state.ClientIndex[order.ClientOrderID]; ok {
		existing := p.state.Orders[id]
		p.mu.Unlock()

		return types.OrderAck{OrderID: existing.OrderID, ClientOrderID: existing.ClientOrderID, Status: existing.Status}, nil
	}
	p.mu.Unlock()

	prices, err := p.prices.FetchLatestPrices(ctx, []string{order.Symbol})
	if err != nil {
		return types.OrderAck{}, errors.Wrap(errors.ErrCodeOrderSubmission, "paper broker could not price order", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	o := types.Order{
		OrderID:       p.newID(),
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		FilledQty:     0,
		AvgFillPrice:  0,
		Status:        types.OrderStatusPending,
		UpdatedAt:     now,
	}

	price, ok := prices[order.Symbol]

	switch {
	case !ok:
		o.Status = types.OrderStatusRejected
		p.logger.Warn("Rejecting paper order without a price", zap.String("symbol", order.Symbol))
	case order.OrderType == types.OrderTypeLimit:
		p.state.Limits[o.OrderID] = order.Price
		if crosses(order.Side, price, order.Price) {
			p.fill(&o, order.Price)
		}
	default:
		p.fill(&o, p.withSlippage(order.Side, price))
	}

	p.state.Orders[o.OrderID] = o
	p.state.ClientIndex[o.ClientOrderID] = o.OrderID
	p.persist()

	return types.OrderAck{OrderID: o.OrderID, ClientOrderID: o.ClientOrderID, Status: o.Status}, nil
}

// GetOrder implements Trading. Resting limit orders are re-checked against the latest price.
func (p *PaperTrading) GetOrder(ctx context.Context, symbol string, orderID string) (types.Order, error) {
	p.mu.Lock()
	o, ok := p.state.Orders[orderID]
	limit, resting := p.state.Limits[orderID]
	p.mu.Unlock()

	if !ok {
		return types.Order{}, errors.Newf(errors.ErrCodeDataNotFound, "order not found: %s", orderID)
	}

	if o.Status != types.OrderStatusPending || !resting {
		return o, nil
	}

	prices, err := p.prices.FetchLatestPrices(ctx, []string{symbol})
	if err != nil {
		return o, nil //nolint:nilerr // a failed re-check leaves the order resting
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o = p.state.Orders[orderID]
	if price, has := prices[symbol]; has && o.Status == types.OrderStatusPending && crosses(o.Side, price, limit) {
		p.fill(&o, limit)
		p.state.Orders[orderID] = o
		p.persist()
	}

	return o, nil
}

// CancelOrder implements Trading.
func (p *PaperTrading) CancelOrder(_ context.Context, _ string, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.state.Orders[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeDataNotFound, "order not found: %s", orderID)
	}

	switch o.Status {
	case types.OrderStatusPending, types.OrderStatusPartiallyFilled:
		o.Status = types.OrderStatusCancelled
		o.UpdatedAt = p.now()
		p.state.Orders[orderID] = o
		delete(p.state.Limits, orderID)
		p.persist()

		return nil
	case types.OrderStatusCancelled:
		return nil
	case types.OrderStatusFilled, types.OrderStatusRejected, types.OrderStatusFailed:
		return errors.Newf(errors.ErrCodeOrderFailed, "order %s is already %s", orderID, o.Status)
	default:
		return errors.Newf(errors.ErrCodeOrderFailed, "order %s is in unknown state %s", orderID, o.Status)
	}
}

// GetPositions implements Trading.
func (p *PaperTrading) GetPositions(_ context.Context) ([]types.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.BrokerPosition, 0, len(p.state.Positions))
	for _, pos := range p.state.Positions {
		out = append(out, pos)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out, nil
}

// GetAccount implements Trading. Open positions are marked at the latest
// price, or at their entry price when none is available.
func (p *PaperTrading) GetAccount(ctx context.Context) (types.AccountInfo, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.state.Positions))
	for symbol := range p.state.Positions {
		symbols = append(symbols, symbol)
	}
	p.mu.Unlock()

	prices, err := p.prices.FetchLatestPrices(ctx, symbols)
	if err != nil {
		prices = map[string]float64{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var marketValue, unrealized float64

	for symbol, pos := range p.state.Positions {
		mark, ok := prices[symbol]
		if !ok {
			mark = pos.AvgEntryPrice
		}

		marketValue += pos.Quantity * mark
		unrealized += pos.Quantity * (mark - pos.AvgEntryPrice)
	}

	return types.AccountInfo{
		Balance:       p.state.Cash,
		Equity:        p.state.Cash + marketValue,
		BuyingPower:   math.Max(p.state.Cash, 0),
		RealizedPnL:   p.state.RealizedPnL,
		UnrealizedPnL: unrealized,
	}, nil
}

func (p *PaperTrading) withSlippage(side types.PurchaseType, price float64) float64 {
	if side == types.PurchaseTypeBuy {
		return price * (1 + p.slippagePct/100)
	}

	return price * (1 - p.slippagePct/100)
}

func crosses(side types.PurchaseType, price, limit float64) bool {
	if side == types.PurchaseTypeBuy {
		return price <= limit
	}

	return price >= limit
}

// fill applies a full fill at price. Must hold p.mu.
func (p *PaperTrading) fill(o *types.Order, price float64) {
	signed := o.Quantity
	if o.Side == types.PurchaseTypeSell {
		signed = -signed
	}

	p.state.Cash -= signed * price

	pos, ok := p.state.Positions[o.Symbol]
	if !ok {
		pos = types.BrokerPosition{Symbol: o.Symbol, Quantity: 0, AvgEntryPrice: 0}
	}

	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, signed):
		total := pos.Quantity + signed
		pos.AvgEntryPrice = (pos.Quantity*pos.AvgEntryPrice + signed*price) / total
		pos.Quantity = total
	default:
		closed := math.Min(math.Abs(signed), math.Abs(pos.Quantity))
		direction := 1.0
		if pos.Quantity < 0 {
			direction = -1
		}

		p.state.RealizedPnL += closed * (price - pos.AvgEntryPrice) * direction
		pos.Quantity += signed

		if !sameSign(pos.Quantity, direction) && pos.Quantity != 0 {
			pos.AvgEntryPrice = price
		}
	}

	if pos.Quantity == 0 {
		delete(p.state.Positions, o.Symbol)
	} else {
		p.state.Positions[o.Symbol] = pos
	}

	delete(p.state.Limits, o.OrderID)

	o.FilledQty = o.Quantity
	o.AvgFillPrice = price
	o.Status = types.OrderStatusFilled
	o.UpdatedAt = p.now()
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// persist writes the account to disk. Must hold p.mu.
func (p *PaperTrading) persist() {
	if p.statePath == "" {
		return
	}

	if err := store.WriteJSONAtomic(p.statePath, p.state); err != nil {
		p.logger.Error("Failed to persist paper account", zap.Error(err))
	}
}

var _ Trading = (*PaperTrading)(nil)
