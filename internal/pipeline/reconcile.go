package pipeline

import (
	"context"
	"math"
	"sort"

	"github.com/rxtech-lab/argo-batch/internal/scanner"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// AdoptedStrategy tags positions found at the broker without a local record.
const AdoptedStrategy = "adopted"

// fallbackATRPct approximates ATR for an adopted symbol the scan never saw.
const fallbackATRPct = 0.02

// ReconcileReport lists what reconciliation did per symbol.
type ReconcileReport struct {
	Kept     []string `json:"kept"`
	Dropped  []string `json:"dropped"`
	Adopted  []string `json:"adopted"`
	Adjusted []string `json:"adjusted"`
}

// Reconcile brings the persisted position table in line with the broker.
// Records without a broker position are dropped, quantities follow the
// broker, and untracked broker positions are adopted with conservative
// protective levels. The result is persisted and returned.
func (p *Pipeline) Reconcile(ctx context.Context) (ReconcileReport, []types.HeldPosition, error) {
	report := ReconcileReport{Kept: []string{}, Dropped: []string{}, Adopted: []string{}, Adjusted: []string{}}

	if p.monitor.Running() {
		return report, nil, errors.New(errors.ErrCodeMonitorRunning, "cannot reconcile while the position monitor is running")
	}

	local, err := p.store.LoadPositions()
	if err != nil {
		return report, nil, err
	}

	remote, err := p.broker.GetPositions(ctx)
	if err != nil {
		return report, nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to load broker positions", err)
	}

	open := make(map[string]types.BrokerPosition, len(remote))
	for _, bp := range remote {
		if bp.Quantity != 0 {
			open[bp.Symbol] = bp
		}
	}

	held := make([]types.HeldPosition, 0, len(open))
	tracked := make(map[string]bool, len(local))

	for _, pos := range local {
		log := p.logger.With(zap.String("symbol", pos.Symbol))

		bp, ok := open[pos.Symbol]
		if !ok || bp.Direction() != pos.Direction || tracked[pos.Symbol] {
			log.Warn("Dropping position without a matching broker position", zap.String("direction", string(pos.Direction)))
			report.Dropped = append(report.Dropped, pos.Symbol)

			continue
		}

		tracked[pos.Symbol] = true

		if qty := math.Abs(bp.Quantity); math.Abs(qty-pos.Quantity) > 1e-9 {
			log.Warn("Adjusting quantity to broker", zap.Float64("local", pos.Quantity), zap.Float64("broker", qty))
			pos.Quantity = qty
			report.Adjusted = append(report.Adjusted, pos.Symbol)
		}

		report.Kept = append(report.Kept, pos.Symbol)
		held = append(held, pos)
	}

	untracked := make([]string, 0)
	for symbol := range open {
		if !tracked[symbol] {
			untracked = append(untracked, symbol)
		}
	}

	sort.Strings(untracked)

	if len(untracked) > 0 {
		prices, err := p.broker.FetchLatestPrices(ctx, untracked)
		if err != nil {
			p.logger.Warn("Failed to price untracked positions, using average entry price", zap.Error(err))

			prices = map[string]float64{}
		}

		batch, _ := p.latestBatch(p.calendar.Date(p.now()))

		for _, symbol := range untracked {
			adopted := p.adopt(open[symbol], prices[symbol], batch)
			held = append(held, adopted)
			report.Adopted = append(report.Adopted, symbol)

			p.logger.Warn("Adopted untracked broker position",
				zap.String("symbol", symbol),
				zap.String("direction", string(adopted.Direction)),
				zap.Float64("quantity", adopted.Quantity),
				zap.Float64("stop", adopted.StopPrice),
				zap.Float64("target", adopted.TargetPrice),
			)
		}
	}

	if err := p.store.SavePositions(held, p.now()); err != nil {
		return report, nil, err
	}

	p.logger.Info("Positions reconciled",
		zap.Int("kept", len(report.Kept)),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("adopted", len(report.Adopted)),
		zap.Int("adjusted", len(report.Adjusted)),
	)

	return report, held, nil
}

// adopt builds a record for a broker position. Levels come from the current
// price with the tightest multipliers and shortest hold of the enabled
// strategies.
func (p *Pipeline) adopt(bp types.BrokerPosition, price float64, batch types.BatchResult) types.HeldPosition {
	if price <= 0 {
		price = bp.AvgEntryPrice
	}

	entry := bp.AvgEntryPrice
	if entry <= 0 {
		entry = price
	}

	stopMult, targetMult, maxHold := p.conservativeLevels()
	atr := atrOf(bp.Symbol, price, batch)
	direction := bp.Direction()
	stop, target := types.ProtectiveLevels(direction, price, atr, stopMult, targetMult)
	now := p.now()

	return types.HeldPosition{
		Symbol:          bp.Symbol,
		Strategy:        AdoptedStrategy,
		Direction:       direction,
		EntryPrice:      entry,
		EntryDate:       p.calendar.Date(p.calendar.PreviousTradingDay(now)),
		EntryTime:       now,
		Quantity:        math.Abs(bp.Quantity),
		StopPrice:       stop,
		StopReason:      types.ExitReasonStopLoss,
		TargetPrice:     target,
		StopATRMult:     stopMult,
		TargetATRMult:   targetMult,
		ATR:             atr,
		MaxHoldDays:     maxHold,
		BarsHeld:        0,
		HighestPrice:    max(entry, price),
		LowestPrice:     min(entry, price),
		EntryDay:        false,
		EntryOrderID:    "",
		EntryIndicators: nil,
		Adopted:         true,
		LastPrice:       price,
		LastUpdate:      now,
		ExitAttempts:    0,
	}
}

func (p *Pipeline) conservativeLevels() (stopMult, targetMult float64, maxHold int) {
	for _, name := range p.config.EnabledStrategies() {
		s := p.config.Strategies[name]

		if stopMult == 0 || s.StopATRMult < stopMult {
			stopMult = s.StopATRMult
		}

		if targetMult == 0 || s.TargetATRMult < targetMult {
			targetMult = s.TargetATRMult
		}

		if maxHold == 0 || s.MaxHoldDays < maxHold {
			maxHold = s.MaxHoldDays
		}
	}

	return stopMult, targetMult, maxHold
}

// atrOf finds the symbol's ATR in the latest batch, falling back to a fixed
// fraction of price.
func atrOf(symbol string, price float64, batch types.BatchResult) float64 {
	if values, ok := batch.Indicators[symbol]; ok {
		if atr, ok := values.Get(scanner.ATRKey); ok && atr > 0 {
			return atr
		}
	}

	for _, r := range batch.ScanResults {
		if r.Symbol == symbol && r.ATR > 0 {
			return r.ATR
		}
	}

	return price * fallbackATRPct
}
