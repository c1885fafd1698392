package entry

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/risk"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/version"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Orders submits entry orders and waits for their fill.
type Orders interface {
	SubmitEntry(ctx context.Context, tradeDate string, c types.Candidate, quantity float64) (types.OrderResult, error)
}

// Positions receives filled entries. The position monitor implements it.
type Positions interface {
	AddPosition(p types.HeldPosition) error
	GetHeld() []types.HeldPosition
}

// Account reports equity for sizing.
type Account interface {
	GetAccount(ctx context.Context) (types.AccountInfo, error)
}

type PriceSource interface {
	FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// ReentryBlocks answers whether a symbol was exited earlier on the trade date.
type ReentryBlocks interface {
	IsReentryBlocked(date, symbol string) (bool, error)
}

// Manager turns filtered candidates into positions.
type Manager struct {
	calendar    *calendar.Calendar
	windowClose config.Clock
	strategies  map[string]config.StrategyConfig
	orders      Orders
	positions   Positions
	account     Account
	prices      PriceSource
	blocks      ReentryBlocks
	risk        *risk.Manager
	now         func() time.Time
	logger      *logger.Logger
}

// Deps groups the collaborators of the entry manager.
type Deps struct {
	Calendar    *calendar.Calendar
	WindowClose config.Clock
	Strategies  map[string]config.StrategyConfig
	Orders      Orders
	Positions   Positions
	Account     Account
	Prices      PriceSource
	Blocks      ReentryBlocks
	Risk        *risk.Manager
	// Now defaults to time.Now.
	Now func() time.Time
}

func New(deps Deps, log *logger.Logger) *Manager {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		calendar:    deps.Calendar,
		windowClose: deps.WindowClose,
		strategies:  deps.Strategies,
		orders:      deps.Orders,
		positions:   deps.Positions,
		account:     deps.Account,
		prices:      deps.Prices,
		blocks:      deps.Blocks,
		risk:        deps.Risk,
		now:         now,
		logger:      log.Component("entry"),
	}
}

// IsWindowOpen reports whether t is on a trading day between the open and the
// entry window close.
func (m *Manager) IsWindowOpen(t time.Time) bool {
	if !m.calendar.IsTradingDay(t) {
		return false
	}

	closeAt := m.calendar.At(t, m.windowClose.Hour, m.windowClose.Minute)

	return !t.Before(m.calendar.MarketOpen(t)) && t.Before(closeAt)
}

// windowRemaining is the time left before the entry window closes on t's day.
// Order submission and retries are bounded by it.
func (m *Manager) windowRemaining(t time.Time) time.Duration {
	return m.calendar.At(t, m.windowClose.Hour, m.windowClose.Minute).Sub(t)
}

// ExecuteImmediate enters every immediate group candidate at market.
func (m *Manager) ExecuteImmediate(ctx context.Context, tradeDate string, candidates []types.Candidate) (types.EntryReport, error) {
	return m.execute(ctx, tradeDate, types.EntryGroupImmediate, types.FilterByEntryGroup(candidates, types.EntryGroupImmediate))
}

// ExecuteConfirmed enters confirm group candidates whose live price moved in
// the signaled direction: at or above the previous close for longs, at or
// below it for shorts. Candidates without a price are not confirmed.
func (m *Manager) ExecuteConfirmed(ctx context.Context, tradeDate string, candidates []types.Candidate) (types.EntryReport, error) {
	return m.execute(ctx, tradeDate, types.EntryGroupConfirm, types.FilterByEntryGroup(candidates, types.EntryGroupConfirm))
}

func (m *Manager) execute(ctx context.Context, tradeDate string, group types.EntryGroup, candidates []types.Candidate) (types.EntryReport, error) {
	report := types.EntryReport{
		SchemaVersion: version.SchemaVersion,
		Timestamp:     m.now(),
		TradeDate:     tradeDate,
		Group:         group,
		Outcomes:      make([]types.EntryOutcome, 0, len(candidates)),
	}

	if !m.IsWindowOpen(m.now()) {
		return report, errors.Newf(errors.ErrCodeEntryWindowClosed,
			"entry window for %s closed at %s", group, m.windowClose)
	}

	prices := m.latestPrices(ctx, candidates)

	for _, c := range candidates {
		if !m.IsWindowOpen(m.now()) {
			report.Outcomes = append(report.Outcomes, outcome(c, types.EntryStatusSkipped, "window_closed", nil))

			continue
		}

		report.Outcomes = append(report.Outcomes, m.enter(ctx, tradeDate, group, c, prices))
	}

	m.logger.Info("Entry stage finished",
		zap.String("group", string(group)),
		zap.String("trade_date", tradeDate),
		zap.Int("candidates", len(candidates)),
		zap.Int("entered", report.Entered()),
	)

	return report, nil
}

func (m *Manager) enter(ctx context.Context, tradeDate string, group types.EntryGroup, c types.Candidate, prices map[string]float64) types.EntryOutcome {
	log := m.logger.With(zap.String("symbol", c.Symbol), zap.String("strategy", c.Strategy))

	if blocked, err := m.blocks.IsReentryBlocked(tradeDate, c.Symbol); err != nil {
		log.Warn("Re-entry block lookup failed", zap.Error(err))
	} else if blocked {
		return outcome(c, types.EntryStatusSkipped, "reentry_blocked", nil)
	}

	held := m.positions.GetHeld()
	for _, p := range held {
		if p.Symbol == c.Symbol {
			return outcome(c, types.EntryStatusSkipped, "already_held", nil)
		}
	}

	price, hasPrice := prices[c.Symbol]

	if group == types.EntryGroupConfirm {
		if !hasPrice {
			log.Info("Candidate unconfirmed", zap.String("price", "unavailable"))

			return outcome(c, types.EntryStatusUnconfirmed, "price_unavailable", nil)
		}

		if !Confirmed(c, price) {
			log.Info("Candidate unconfirmed", zap.Float64("price", price), zap.Float64("prev_close", c.PrevClose))

			return outcome(c, types.EntryStatusUnconfirmed, "not_confirmed", nil)
		}
	}

	if !hasPrice {
		price = c.PrevClose
	}

	account, err := m.account.GetAccount(ctx)
	if err != nil {
		log.Error("Account unavailable, skipping entry", zap.Error(err))

		return outcome(c, types.EntryStatusFailed, "account_unavailable", nil)
	}

	qty := m.risk.Size(account, c, m.strategies[c.Strategy].AllocationWeight, price)
	if err := m.risk.Check(account, held, c, qty, price); err != nil {
		log.Info("Entry rejected by risk check", zap.Error(err))

		return outcome(c, types.EntryStatusRejected, err.Error(), nil)
	}

	submitCtx, cancel := context.WithTimeout(ctx, m.windowRemaining(m.now()))
	defer cancel()

	result, err := m.orders.SubmitEntry(submitCtx, tradeDate, c, qty)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Entry window closed before the order completed", zap.Error(err))

			return outcome(c, types.EntryStatusFailed, "window_closed", nil)
		}

		log.Error("Entry order failed", zap.Error(err))

		return outcome(c, types.EntryStatusFailed, err.Error(), nil)
	}

	if result.FilledQty <= 0 || result.AvgFillPrice <= 0 {
		return outcome(c, types.EntryStatusFailed, "no fill", &result)
	}

	position := types.NewHeldPosition(c, result.AvgFillPrice, result.FilledQty, result.OrderID, tradeDate, m.now())
	if err := m.positions.AddPosition(position); err != nil {
		log.Error("Filled entry could not be registered", zap.Error(err))

		return outcome(c, types.EntryStatusFailed, err.Error(), &result)
	}

	log.Info("Entered position",
		zap.Float64("quantity", position.Quantity),
		zap.Float64("fill_price", position.EntryPrice),
		zap.Float64("stop", position.StopPrice),
		zap.Float64("target", position.TargetPrice),
	)

	return outcome(c, types.EntryStatusEntered, fmt.Sprintf("filled %.4g @ %.4f", result.FilledQty, result.AvgFillPrice), &result)
}

func (m *Manager) latestPrices(ctx context.Context, candidates []types.Candidate) map[string]float64 {
	if len(candidates) == 0 {
		return map[string]float64{}
	}

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.Symbol
	}

	prices, err := m.prices.FetchLatestPrices(ctx, symbols)
	if err != nil {
		m.logger.Warn("Latest prices unavailable", zap.Error(err))

		return map[string]float64{}
	}

	return prices
}

// Confirmed reports whether price confirms the candidate's direction.
func Confirmed(c types.Candidate, price float64) bool {
	if c.Direction == types.DirectionShort {
		return price <= c.PrevClose
	}

	return price >= c.PrevClose
}

func outcome(c types.Candidate, status, reason string, order *types.OrderResult) types.EntryOutcome {
	return types.EntryOutcome{
		Symbol:   c.Symbol,
		Strategy: c.Strategy,
		Status:   status,
		Reason:   reason,
		Order:    order,
	}
}
