package monitor

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-batch/internal/calendar"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/metrics"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// PriceFeed streams live prices for a set of symbols.
type PriceFeed interface {
	SubscribePrices(ctx context.Context, symbols []string) iter.Seq2[types.PriceUpdate, error]
}

// Orders closes positions.
type Orders interface {
	SubmitExit(ctx context.Context, tradeDate string, p types.HeldPosition, reason string) (types.OrderResult, error)
}

// Store persists the position table and same-day re-entry blocks.
type Store interface {
	SavePositions(held []types.HeldPosition, at time.Time) error
	AddReentryBlock(date, symbol string) error
}

// Evaluator decides whether a position should be closed.
type Evaluator interface {
	Evaluate(p types.HeldPosition, price float64, indicators types.IndicatorValues, today string) types.ExitDecision
}

type Deps struct {
	Feed     PriceFeed
	Orders   Orders
	Store    Store
	Engine   Evaluator
	Calendar *calendar.Calendar
	Metrics  *metrics.Recorder
	// ReconnectMax caps the delay between stream reconnects. Default one minute.
	ReconnectMax time.Duration
	// PersistInterval flushes price driven changes. Default 30 seconds.
	PersistInterval time.Duration
	// ExitRetryCooldown is the wait after a rejected or unfilled exit before
	// the position is exited again. Default one minute.
	ExitRetryCooldown time.Duration
	Now               func() time.Time
}

// Monitor owns the held position table. All mutation happens on a single
// loop goroutine; the exported methods hand work to it over a channel.
type Monitor struct {
	feed            PriceFeed
	orders          Orders
	store           Store
	engine          Evaluator
	calendar        *calendar.Calendar
	metrics         *metrics.Recorder
	reconnectMax    time.Duration
	persistInterval time.Duration
	exitCooldown    time.Duration
	now             func() time.Time
	logger          *logger.Logger

	mu       sync.Mutex
	session  *session
	stopping bool
	held     []types.HeldPosition
	exits    sync.WaitGroup
}

type session struct {
	cmds   chan func(*state)
	done   chan struct{}
	cancel context.CancelFunc
}

type tick struct {
	generation int
	update     types.PriceUpdate
	err        error
	ended      bool
}

// pendingExit holds back new exits for a symbol while one is in flight and
// until retryAt after one ended without a fill.
type pendingExit struct {
	inFlight bool
	retryAt  time.Time
}

type state struct {
	ctx        context.Context
	positions  map[string]*types.HeldPosition
	indicators map[string]types.IndicatorValues
	exiting    map[string]*pendingExit
	dirty      bool
	stopping   bool

	ticks      chan tick
	generation int
	streaming  []string
	stopStream context.CancelFunc
	reconnect  <-chan time.Time
	retry      *backoff.ExponentialBackOff
}

func New(deps Deps, log *logger.Logger) *Monitor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	reconnectMax := deps.ReconnectMax
	if reconnectMax <= 0 {
		reconnectMax = time.Minute
	}

	persistInterval := deps.PersistInterval
	if persistInterval <= 0 {
		persistInterval = 30 * time.Second
	}

	exitCooldown := deps.ExitRetryCooldown
	if exitCooldown <= 0 {
		exitCooldown = time.Minute
	}

	return &Monitor{
		feed:            deps.Feed,
		orders:          deps.Orders,
		store:           deps.Store,
		engine:          deps.Engine,
		calendar:        deps.Calendar,
		metrics:         deps.Metrics,
		reconnectMax:    reconnectMax,
		persistInterval: persistInterval,
		exitCooldown:    exitCooldown,
		now:             now,
		logger:          log.Component("monitor"),
		held:            []types.HeldPosition{},
	}
}

// Start loads positions into the table and begins streaming prices for them.
func (m *Monitor) Start(ctx context.Context, positions []types.HeldPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return errors.New(errors.ErrCodeMonitorRunning, "position monitor already running")
	}

	s := m.newState(positions)
	loopCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		cmds:   make(chan func(*state)),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	m.session = sess
	m.stopping = false
	m.held = s.list()

	go m.run(loopCtx, sess, s)

	m.logger.Info("Position monitor started", zap.Int("positions", len(s.positions)))

	return nil
}

// Stop closes the price stream, waits for in-flight exit orders and persists
// the final table. Positions stay on record for the next Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sess := m.session
	if sess == nil || m.stopping {
		m.mu.Unlock()

		return
	}

	m.stopping = true
	m.mu.Unlock()

	_ = m.call(func(s *state) {
		s.stopping = true
		m.closeStream(s)
	})

	m.exits.Wait()
	sess.cancel()
	<-sess.done

	m.mu.Lock()
	m.session = nil
	m.stopping = false
	m.mu.Unlock()

	m.logger.Info("Position monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session != nil
}

// AddPosition registers a newly filled position.
func (m *Monitor) AddPosition(p types.HeldPosition) error {
	var result error

	err := m.call(func(s *state) {
		if _, ok := s.positions[p.Symbol]; ok {
			result = errors.Newf(errors.ErrCodePositionExists, "position for %s already held", p.Symbol)

			return
		}

		pos := p
		s.positions[p.Symbol] = &pos
		m.logger.Info("Position registered",
			zap.String("symbol", p.Symbol),
			zap.String("direction", string(p.Direction)),
			zap.Float64("quantity", p.Quantity),
			zap.Float64("stop", p.StopPrice),
			zap.Float64("target", p.TargetPrice),
		)
		m.changed(s)
	})
	if err != nil {
		return err
	}

	return result
}

// RemovePosition drops a position from monitoring without placing an order.
func (m *Monitor) RemovePosition(symbol string) (types.HeldPosition, error) {
	var (
		removed types.HeldPosition
		result  error
	)

	err := m.call(func(s *state) {
		p, ok := s.positions[symbol]
		if !ok {
			result = errors.Newf(errors.ErrCodePositionNotFound, "no held position for %s", symbol)

			return
		}

		removed = *p
		delete(s.positions, symbol)
		delete(s.exiting, symbol)
		m.changed(s)
	})
	if err != nil {
		return types.HeldPosition{}, err
	}

	return removed, result
}

// UpdateIndicators replaces the indicator snapshots used by the regime guard.
func (m *Monitor) UpdateIndicators(values map[string]types.IndicatorValues) error {
	return m.call(func(s *state) {
		for symbol, v := range values {
			s.indicators[symbol] = v.Clone()
		}
	})
}

// GetHeld returns a copy of the position table. It does not block on the loop
// and keeps answering after Stop.
func (m *Monitor) GetHeld() []types.HeldPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.held)
}

// Snapshots returns the held positions with their excursion figures.
func (m *Monitor) Snapshots() []types.PositionSnapshot {
	held := m.GetHeld()
	out := make([]types.PositionSnapshot, len(held))

	for i, p := range held {
		out[i] = p.Snapshot()
	}

	return out
}

func (m *Monitor) newState(positions []types.HeldPosition) *state {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = min(time.Second, m.reconnectMax)
	backoffPolicy.MaxInterval = m.reconnectMax
	backoffPolicy.MaxElapsedTime = 0

	s := &state{
		positions:  make(map[string]*types.HeldPosition, len(positions)),
		indicators: make(map[string]types.IndicatorValues),
		exiting:    make(map[string]*pendingExit),
		ticks:      make(chan tick),
		retry:      backoffPolicy,
	}

	for _, p := range positions {
		if _, dup := s.positions[p.Symbol]; dup {
			m.logger.Warn("Duplicate position ignored", zap.String("symbol", p.Symbol))

			continue
		}

		pos := p
		s.positions[p.Symbol] = &pos
	}

	return s
}

func (s *state) list() []types.HeldPosition {
	out := make([]types.HeldPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out
}

func (s *state) symbols() []string {
	out := make([]string, 0, len(s.positions))
	for symbol := range s.positions {
		out = append(out, symbol)
	}

	sort.Strings(out)

	return out
}

// call runs fn on the loop and waits for it to finish.
func (m *Monitor) call(fn func(*state)) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		return errors.New(errors.ErrCodeMonitorNotRunning, "position monitor is not running")
	}

	reply := make(chan struct{})
	if !deliver(sess, func(s *state) {
		fn(s)
		close(reply)
	}) {
		return errors.New(errors.ErrCodeMonitorNotRunning, "position monitor is not running")
	}

	select {
	case <-reply:
		return nil
	case <-sess.done:
		return errors.New(errors.ErrCodeMonitorNotRunning, "position monitor stopped")
	}
}

func deliver(sess *session, fn func(*state)) bool {
	select {
	case sess.cmds <- fn:
		return true
	case <-sess.done:
		return false
	}
}

func (m *Monitor) run(ctx context.Context, sess *session, s *state) {
	defer close(sess.done)

	persist := time.NewTicker(m.persistInterval)
	defer persist.Stop()

	s.ctx = ctx
	m.resubscribe(s)
	m.publish(s)

	for {
		select {
		case <-ctx.Done():
			m.closeStream(s)
			m.persist(s)

			return
		case fn := <-sess.cmds:
			fn(s)
		case t := <-s.ticks:
			m.onTick(ctx, sess, s, t)
		case <-s.reconnect:
			s.reconnect = nil
			m.metrics.RecordReconnect()
			m.resubscribe(s)
		case <-persist.C:
			if s.dirty {
				m.persist(s)
			}
		}
	}
}

func (m *Monitor) onTick(ctx context.Context, sess *session, s *state, t tick) {
	if t.generation != s.generation {
		return
	}

	if t.err != nil || t.ended {
		m.closeStream(s)

		if s.stopping {
			return
		}

		delay := s.retry.NextBackOff()
		m.logger.Warn("Price stream interrupted, reconnecting",
			zap.Error(t.err),
			zap.Duration("delay", delay),
		)
		s.reconnect = time.After(delay)

		return
	}

	s.retry.Reset()
	m.onPrice(ctx, sess, s, t.update)
}

func (m *Monitor) onPrice(ctx context.Context, sess *session, s *state, u types.PriceUpdate) {
	p, ok := s.positions[u.Symbol]
	if !ok || u.Price <= 0 {
		return
	}

	m.metrics.RecordPriceUpdate()

	at := u.Time
	if at.IsZero() {
		at = m.now()
	}

	today := m.calendar.Date(at)

	if !p.LastUpdate.IsZero() && m.calendar.Date(p.LastUpdate) != today {
		p.BarsHeld++
	}

	p.EntryDay = p.EntryDate == today
	p.Observe(u.Price, at)
	s.dirty = true
	m.publish(s)

	if pending, ok := s.exiting[u.Symbol]; ok {
		if pending.inFlight || at.Before(pending.retryAt) {
			return
		}

		delete(s.exiting, u.Symbol)
	}

	decision := m.engine.Evaluate(*p, u.Price, s.indicators[u.Symbol], today)

	if decision.NewStop.IsSome() && p.TightenStop(decision.NewStop.Unwrap(), decision.StopReason) {
		m.logger.Info("Stop tightened",
			zap.String("symbol", p.Symbol),
			zap.String("rule", decision.StopReason),
			zap.Float64("stop", p.StopPrice),
		)
		m.changed(s)
	}

	if !decision.IsExit() {
		return
	}

	trigger := u.Price
	if decision.TriggerPrice.IsSome() {
		trigger = decision.TriggerPrice.Unwrap()
	}

	m.logger.Info("Exit triggered",
		zap.String("symbol", p.Symbol),
		zap.String("reason", decision.Reason),
		zap.Float64("price", u.Price),
		zap.Float64("trigger", trigger),
	)
	m.metrics.RecordExit(decision.Reason)

	if s.stopping {
		m.logger.Warn("Monitor stopping, exit deferred to next start", zap.String("symbol", p.Symbol))

		return
	}

	s.exiting[p.Symbol] = &pendingExit{inFlight: true}
	snapshot := *p

	m.exits.Add(1)

	go func() {
		defer m.exits.Done()

		result, err := m.orders.SubmitExit(context.WithoutCancel(ctx), today, snapshot, decision.Reason)
		deliver(sess, func(s *state) {
			m.finishExit(s, snapshot, decision.Reason, today, result, err)
		})
	}()
}

func (m *Monitor) finishExit(s *state, p types.HeldPosition, reason, today string, result types.OrderResult, err error) {
	log := m.logger.With(zap.String("symbol", p.Symbol), zap.String("reason", reason))

	if err != nil {
		if errors.IsOrderSubmission(err) {
			delete(s.exiting, p.Symbol)
			log.Error("Exit order failed, retrying on next update", zap.Error(err))

			return
		}

		if pending, ok := s.exiting[p.Symbol]; ok {
			pending.inFlight = false
			pending.retryAt = m.now().Add(m.exitCooldown)
		}

		log.Error("Exit order did not complete, retrying after cooldown",
			zap.Duration("cooldown", m.exitCooldown),
			zap.Error(err),
		)

		if held, ok := s.positions[p.Symbol]; ok {
			held.ExitAttempts++
			m.changed(s)
		}

		return
	}

	held, ok := s.positions[p.Symbol]
	if !ok {
		return
	}

	if result.FilledQty < held.Quantity {
		held.Quantity -= result.FilledQty
		held.ExitAttempts++
		delete(s.exiting, p.Symbol)
		log.Warn("Exit partially filled, remainder stays under watch",
			zap.Float64("filled", result.FilledQty),
			zap.Float64("remaining", held.Quantity),
		)
		m.changed(s)

		return
	}

	delete(s.positions, p.Symbol)
	delete(s.exiting, p.Symbol)

	if err := m.store.AddReentryBlock(today, p.Symbol); err != nil {
		log.Error("Failed to record re-entry block", zap.Error(err))
	}

	log.Info("Position closed",
		zap.Float64("fill_price", result.AvgFillPrice),
		zap.Float64("quantity", result.FilledQty),
		zap.Float64("pnl_per_share", held.UnrealizedPnL(result.AvgFillPrice)),
		zap.String("order_id", result.OrderID),
	)
	m.changed(s)
}

// changed persists after a table mutation and rescopes the stream.
func (m *Monitor) changed(s *state) {
	s.dirty = true
	m.persist(s)
	m.publish(s)
	m.metrics.SetHeldPositions(len(s.positions))

	if !s.stopping {
		m.resubscribe(s)
	}
}

func (m *Monitor) persist(s *state) {
	if err := m.store.SavePositions(s.list(), m.now()); err != nil {
		m.logger.Error("Failed to persist positions", zap.Error(err))

		return
	}

	s.dirty = false
	m.publish(s)
}

func (m *Monitor) publish(s *state) {
	held := s.list()

	m.mu.Lock()
	m.held = held
	m.mu.Unlock()
}

// resubscribe points the stream at the current held symbols. It is a no-op
// when the stream already covers exactly that set or a reconnect is pending.
func (m *Monitor) resubscribe(s *state) {
	symbols := s.symbols()

	if s.stopStream != nil && slices.Equal(symbols, s.streaming) {
		return
	}

	if s.stopStream == nil && s.reconnect != nil {
		return
	}

	m.closeStream(s)

	if len(symbols) == 0 {
		return
	}

	s.generation++
	streamCtx, cancel := context.WithCancel(s.ctx)
	s.stopStream = cancel
	s.streaming = symbols

	m.logger.Info("Subscribing to prices", zap.Strings("symbols", symbols))

	go m.stream(streamCtx, symbols, s.generation, s.ticks)
}

func (m *Monitor) closeStream(s *state) {
	if s.stopStream != nil {
		s.stopStream()
	}

	s.stopStream = nil
	s.streaming = nil
}

// stream forwards one subscription to the loop until it fails or ends.
func (m *Monitor) stream(ctx context.Context, symbols []string, generation int, out chan<- tick) {
	send := func(t tick) bool {
		select {
		case out <- t:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for update, err := range m.feed.SubscribePrices(ctx, symbols) {
		if !send(tick{generation: generation, update: update, err: err}) || err != nil {
			return
		}
	}

	if ctx.Err() == nil {
		send(tick{generation: generation, ended: true})
	}
}
