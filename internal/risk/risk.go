package risk

import (
	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/utils"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager performs the portfolio risk check and sizes new positions from equity.
type Manager struct {
	config config.RiskConfig
	logger *logger.Logger
}

func New(cfg config.RiskConfig, log *logger.Logger) *Manager {
	return &Manager{
		config: cfg,
		logger: log.Component("risk"),
	}
}

// Size returns the whole share quantity for a candidate at price. It is the
// smaller of the allocation (equity * allocationWeight / price) and the risk
// budget (equity * max risk per trade / stop distance), capped by buying power.
func (m *Manager) Size(account types.AccountInfo, c types.Candidate, allocationWeight, price float64) float64 {
	if price <= 0 || account.Equity <= 0 {
		return 0
	}

	equity := decimal.NewFromFloat(account.Equity)
	allocation := equity.Mul(decimal.NewFromFloat(allocationWeight))
	qty := utils.FloorShares(allocation.InexactFloat64(), price)

	stopDistance := decimal.NewFromFloat(c.StopATRMult).Mul(decimal.NewFromFloat(c.ATR))
	if stopDistance.IsPositive() {
		budget := equity.Mul(decimal.NewFromFloat(m.config.MaxRiskPerTradePct))
		byRisk := budget.Div(stopDistance).Floor().InexactFloat64()
		qty = min(qty, byRisk)
	}

	if account.BuyingPower > 0 {
		qty = min(qty, utils.FloorShares(account.BuyingPower, price))
	}

	return qty
}

// Check rejects an entry that would exceed the position count or the total
// open risk budget, or that duplicates a held symbol.
func (m *Manager) Check(account types.AccountInfo, held []types.HeldPosition, c types.Candidate, quantity, price float64) error {
	for _, p := range held {
		if p.Symbol == c.Symbol {
			return errors.Newf(errors.ErrCodePositionExists, "%s is already held", c.Symbol)
		}
	}

	if len(held) >= m.config.MaxPositions {
		return errors.Newf(errors.ErrCodeRiskRejected, "max positions reached (%d)", m.config.MaxPositions)
	}

	if quantity <= 0 {
		return errors.Newf(errors.ErrCodeRiskRejected, "position size for %s rounds to zero", c.Symbol)
	}

	openRisk := decimal.Zero
	for _, p := range held {
		openRisk = openRisk.Add(decimal.NewFromFloat(p.OpenRisk()))
	}

	newRisk := decimal.NewFromFloat(c.StopATRMult).
		Mul(decimal.NewFromFloat(c.ATR)).
		Mul(decimal.NewFromFloat(quantity))
	limit := decimal.NewFromFloat(account.Equity).Mul(decimal.NewFromFloat(m.config.MaxTotalRiskPct))

	if openRisk.Add(newRisk).GreaterThan(limit) {
		m.logger.Info("Entry exceeds risk budget",
			zap.String("symbol", c.Symbol),
			zap.Float64("open_risk", openRisk.InexactFloat64()),
			zap.Float64("new_risk", newRisk.InexactFloat64()),
			zap.Float64("limit", limit.InexactFloat64()),
		)

		return errors.Newf(errors.ErrCodeRiskRejected, "risk budget exceeded for %s", c.Symbol)
	}

	return nil
}
