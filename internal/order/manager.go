package order

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/broker"
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Journal is the order journal the manager records into.
type Journal interface {
	Upsert(rec types.OrderRecord) error
	Get(clientOrderID string) (optional.Option[types.OrderRecord], error)
}

// Manager submits entry and exit orders, retries transient broker failures
// and blocks until the order fills or the fill timeout passes.
type Manager struct {
	trading broker.Trading
	journal Journal
	breaker *gobreaker.CircuitBreaker
	config  config.OrderConfig
	metrics *metrics.Recorder
	now     func() time.Time
	logger  *logger.Logger
}

func New(trading broker.Trading, journal Journal, cfg config.OrderConfig, log *logger.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	l := log.Component("order")

	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(cfg.BreakerFailures, 1)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: nil,
	}

	return &Manager{
		trading: trading,
		journal: journal,
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  cfg,
		now:     time.Now,
		logger:  l,
	}
}

// WithMetrics records every submission outcome on rec.
func (m *Manager) WithMetrics(rec *metrics.Recorder) *Manager {
	m.metrics = rec

	return m
}

// ClientOrderID is deterministic per trade date, symbol, side and purpose, so
// re-running a stage finds the order it already placed.
func ClientOrderID(tradeDate, symbol string, side types.PurchaseType, purpose types.OrderPurpose) string {
	return fmt.Sprintf("%s:%s:%s:%s", tradeDate, symbol, side, purpose)
}

// ExitClientOrderID keys an exit on the attempt number as well, so an exit
// that follows a partial fill or a rejection gets a fresh broker order while a
// restarted process still resumes the attempt in flight.
func ExitClientOrderID(tradeDate string, p types.HeldPosition) string {
	id := ClientOrderID(tradeDate, p.Symbol, p.Direction.ExitSide(), types.OrderPurposeExit)
	if p.ExitAttempts == 0 {
		return id
	}

	return fmt.Sprintf("%s:%d", id, p.ExitAttempts+1)
}

// SubmitEntry opens a position for candidate with a market order.
func (m *Manager) SubmitEntry(ctx context.Context, tradeDate string, c types.Candidate, quantity float64) (types.OrderResult, error) {
	side := c.Direction.EntrySide()

	return m.submit(ctx, tradeDate, types.ExecuteOrder{
		ClientOrderID: ClientOrderID(tradeDate, c.Symbol, side, types.OrderPurposeEntry),
		Symbol:        c.Symbol,
		Side:          side,
		OrderType:     types.OrderTypeMarket,
		Quantity:      quantity,
		Price:         c.PrevClose,
		Purpose:       types.OrderPurposeEntry,
		Reason:        "entry",
		Strategy:      c.Strategy,
	})
}

// SubmitExit closes the whole position with a market order.
func (m *Manager) SubmitExit(ctx context.Context, tradeDate string, p types.HeldPosition, reason string) (types.OrderResult, error) {
	side := p.Direction.ExitSide()

	return m.submit(ctx, tradeDate, types.ExecuteOrder{
		ClientOrderID: ExitClientOrderID(tradeDate, p),
		Symbol:        p.Symbol,
		Side:          side,
		OrderType:     types.OrderTypeMarket,
		Quantity:      p.Quantity,
		Price:         p.LastPrice,
		Purpose:       types.OrderPurposeExit,
		Reason:        reason,
		Strategy:      p.Strategy,
	})
}

// Cancel cancels an open order.
func (m *Manager) Cancel(ctx context.Context, symbol, orderID string) error {
	_, err := m.breaker.Execute(func() (any, error) {
		return nil, m.trading.CancelOrder(ctx, symbol, orderID)
	})
	if err != nil {
		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to cancel order %s", orderID)
	}

	return nil
}

func (m *Manager) submit(ctx context.Context, tradeDate string, req types.ExecuteOrder) (result types.OrderResult, err error) {
	defer func() {
		m.metrics.RecordOrder(string(req.Purpose), outcome(result, err))
	}()

	if err := req.Validate(); err != nil {
		return types.OrderResult{}, err
	}

	rec, resumed, err := m.existing(tradeDate, req)
	if err != nil {
		return types.OrderResult{}, err
	}

	if resumed {
		m.logger.Info("Order already placed, resuming",
			zap.String("client_order_id", req.ClientOrderID),
			zap.String("order_id", rec.OrderID),
			zap.String("status", string(rec.Status)),
		)

		return m.awaitFill(ctx, req, rec)
	}

	ack, attempts, err := m.place(ctx, req)
	rec.Attempts += attempts
	rec.UpdatedAt = m.now()

	if err != nil {
		rec.Status = types.OrderStatusFailed
		rec.LastError = err.Error()
		m.record(rec)

		m.logger.Error("Order submission failed, skipping",
			zap.String("symbol", req.Symbol),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		return types.OrderResult{}, errors.Wrapf(errors.ErrCodeOrderSubmission, err, "failed to submit %s order for %s", req.Purpose, req.Symbol)
	}

	rec.OrderID = ack.OrderID
	rec.Status = ack.Status
	rec.LastError = ""
	m.record(rec)

	m.logger.Info("Order submitted",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("purpose", string(req.Purpose)),
		zap.Float64("quantity", req.Quantity),
		zap.String("order_id", ack.OrderID),
		zap.String("reason", req.Reason),
	)

	return m.awaitFill(ctx, req, rec)
}

// existing returns the journal record for the request. resumed is true when
// the broker already accepted an order under this client order id.
func (m *Manager) existing(tradeDate string, req types.ExecuteOrder) (types.OrderRecord, bool, error) {
	now := m.now()
	fresh := types.OrderRecord{
		ClientOrderID: req.ClientOrderID,
		OrderID:       "",
		TradeDate:     tradeDate,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Purpose:       req.Purpose,
		Reason:        req.Reason,
		Strategy:      req.Strategy,
		Quantity:      req.Quantity,
		FilledQty:     0,
		AvgFillPrice:  0,
		Status:        types.OrderStatusPending,
		Attempts:      0,
		LastError:     "",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if m.journal == nil {
		return fresh, false, nil
	}

	found, err := m.journal.Get(req.ClientOrderID)
	if err != nil {
		m.logger.Warn("Order journal lookup failed", zap.String("client_order_id", req.ClientOrderID), zap.Error(err))

		return fresh, false, nil
	}

	if found.IsNone() {
		return fresh, false, nil
	}

	rec := found.Unwrap()
	if rec.OrderID == "" {
		// never reached the broker, safe to submit again
		return rec, false, nil
	}

	return rec, true, nil
}

func (m *Manager) place(ctx context.Context, req types.ExecuteOrder) (types.OrderAck, int, error) {
	policy := backoff.NewExponentialBackOff()
	if m.config.InitialBackoff > 0 {
		policy.InitialInterval = m.config.InitialBackoff
	}

	if m.config.MaxBackoff > 0 {
		policy.MaxInterval = m.config.MaxBackoff
	}

	policy.MaxElapsedTime = 0

	attempts := 0

	var ack types.OrderAck

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++

		out, err := m.breaker.Execute(func() (any, error) {
			return m.trading.SubmitOrder(ctx, req)
		})
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		ack, _ = out.(types.OrderAck)

		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Warn("Order submission attempt failed",
			zap.String("client_order_id", req.ClientOrderID),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(m.config.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, retry, notify)

	return ack, attempts, err
}

// awaitFill polls the broker until the order is terminal or the fill timeout
// passes. A partially filled order is accepted; the remainder is cancelled.
func (m *Manager) awaitFill(ctx context.Context, req types.ExecuteOrder, rec types.OrderRecord) (types.OrderResult, error) {
	var timeout <-chan time.Time

	if m.config.FillTimeout > 0 {
		timer := time.NewTimer(m.config.FillTimeout)
		defer timer.Stop()

		timeout = timer.C
	}

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	submittedAt := rec.CreatedAt
	last := types.Order{
		OrderID:       rec.OrderID,
		ClientOrderID: rec.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		FilledQty:     rec.FilledQty,
		AvgFillPrice:  rec.AvgFillPrice,
		Status:        rec.Status,
		UpdatedAt:     rec.UpdatedAt,
	}

	for {
		o, err := m.trading.GetOrder(ctx, req.Symbol, rec.OrderID)
		if err != nil {
			m.logger.Warn("Order status poll failed", zap.String("order_id", rec.OrderID), zap.Error(err))
		} else {
			last = o
			if o.Quantity == 0 {
				last.Quantity = req.Quantity
			}
		}

		if last.Status.IsTerminal() {
			return m.settle(req, rec, last, submittedAt)
		}

		select {
		case <-ctx.Done():
			return m.expire(context.WithoutCancel(ctx), req, rec, last, submittedAt, ctx.Err())
		case <-timeout:
			return m.expire(ctx, req, rec, last, submittedAt, nil)
		case <-ticker.C:
		}
	}
}

func (m *Manager) settle(req types.ExecuteOrder, rec types.OrderRecord, o types.Order, submittedAt time.Time) (types.OrderResult, error) {
	now := m.now()
	rec.Status = o.Status
	rec.FilledQty = o.FilledQty
	rec.AvgFillPrice = o.AvgFillPrice
	rec.UpdatedAt = now

	result := o.Result(req.Purpose, submittedAt, now)

	if o.Status == types.OrderStatusFilled || o.FilledQty > 0 {
		m.record(rec)

		m.logger.Info("Order filled",
			zap.String("symbol", req.Symbol),
			zap.String("order_id", o.OrderID),
			zap.Float64("filled_qty", o.FilledQty),
			zap.Float64("avg_fill_price", o.AvgFillPrice),
			zap.String("status", string(o.Status)),
		)

		return result, nil
	}

	rec.LastError = fmt.Sprintf("order ended %s without a fill", o.Status)
	m.record(rec)

	return result, errors.Newf(errors.ErrCodeOrderRejected, "order %s for %s ended %s without a fill", o.OrderID, req.Symbol, o.Status)
}

func (m *Manager) expire(ctx context.Context, req types.ExecuteOrder, rec types.OrderRecord, o types.Order, submittedAt time.Time, cause error) (types.OrderResult, error) {
	if err := m.Cancel(ctx, req.Symbol, rec.OrderID); err != nil {
		m.logger.Warn("Failed to cancel unfilled remainder", zap.String("order_id", rec.OrderID), zap.Error(err))
	}

	if o.FilledQty > 0 {
		o.Status = types.OrderStatusPartiallyFilled

		return m.settle(req, rec, o, submittedAt)
	}

	rec.Status = types.OrderStatusCancelled
	rec.LastError = "fill timeout"
	rec.UpdatedAt = m.now()
	m.record(rec)

	m.logger.Warn("Order not filled in time",
		zap.String("symbol", req.Symbol),
		zap.String("order_id", rec.OrderID),
		zap.Duration("timeout", m.config.FillTimeout),
	)

	if cause != nil {
		return types.OrderResult{}, errors.Wrapf(errors.ErrCodeFillTimeout, cause, "order %s for %s interrupted before fill", rec.OrderID, req.Symbol)
	}

	return types.OrderResult{}, errors.Newf(errors.ErrCodeFillTimeout, "order %s for %s not filled within %s", rec.OrderID, req.Symbol, m.config.FillTimeout)
}

func (m *Manager) record(rec types.OrderRecord) {
	if m.journal == nil {
		return
	}

	if err := m.journal.Upsert(rec); err != nil {
		m.logger.Warn("Failed to journal order", zap.String("client_order_id", rec.ClientOrderID), zap.Error(err))
	}
}

func outcome(result types.OrderResult, err error) string {
	switch {
	case err == nil:
		return string(result.Status)
	case errors.HasCode(err, errors.ErrCodeFillTimeout):
		return "fill_timeout"
	case errors.HasCode(err, errors.ErrCodeOrderRejected):
		return "rejected"
	default:
		return "failed"
	}
}

func permanent(err error) bool {
	return errors.HasCode(err, errors.ErrCodeOrderRejected) ||
		errors.HasCode(err, errors.ErrCodeInvalidOrder) ||
		errors.Is(err, gobreaker.ErrOpenState)
}
