package gapfilter

import (
	"context"
	"math"

	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/internal/utils"
	"go.uber.org/zap"
)

// PriceSource returns pre-open prices. Missing symbols are absent from the map.
type PriceSource interface {
	FetchLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// GapFilter drops candidates whose pre-open price moved too far from the
// previous close. It fails open: a candidate without a price is kept.
type GapFilter struct {
	prices PriceSource
	logger *logger.Logger
}

func New(prices PriceSource, log *logger.Logger) *GapFilter {
	return &GapFilter{
		prices: prices,
		logger: log.Component("gapfilter"),
	}
}

// Filter returns the kept candidates in their original order together with
// one decision per candidate.
func (g *GapFilter) Filter(ctx context.Context, candidates []types.Candidate, thresholdPct float64) ([]types.Candidate, []types.GapDecision) {
	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.Symbol
	}

	prices := map[string]float64{}

	if len(symbols) > 0 {
		fetched, err := g.prices.FetchLatestPrices(ctx, symbols)
		if err != nil {
			g.logger.Warn("Pre-open prices unavailable, passing all candidates", zap.Error(err))
		} else {
			prices = fetched
		}
	}

	kept := make([]types.Candidate, 0, len(candidates))
	decisions := make([]types.GapDecision, 0, len(candidates))

	for _, c := range candidates {
		decision := Decide(c, prices, thresholdPct)
		decisions = append(decisions, decision)

		switch {
		case decision.Action == types.GapActionDrop:
			g.logger.Info("Candidate dropped",
				zap.String("symbol", c.Symbol),
				zap.String("reason", decision.Reason),
				zap.Float64("gap_pct", *decision.GapPct),
				zap.Float64("threshold_pct", thresholdPct),
			)
		case decision.Reason == types.GapReasonPriceUnavailable:
			g.logger.Info("Candidate passed without price",
				zap.String("symbol", c.Symbol),
				zap.String("gap", "unavailable"),
			)
		default:
			g.logger.Debug("Candidate kept",
				zap.String("symbol", c.Symbol),
				zap.Float64("gap_pct", *decision.GapPct),
			)
		}

		if decision.Action == types.GapActionKeep {
			kept = append(kept, c)
		}
	}

	return kept, decisions
}

// Decide applies the gap rule to one candidate. The gap is |price - prev close|
// / prev close in percent; a gap strictly above thresholdPct drops the candidate.
func Decide(c types.Candidate, prices map[string]float64, thresholdPct float64) types.GapDecision {
	price, ok := prices[c.Symbol]
	if !ok || price <= 0 || c.PrevClose <= 0 {
		return types.GapDecision{
			Symbol: c.Symbol,
			Action: types.GapActionKeep,
			Reason: types.GapReasonPriceUnavailable,
			Price:  nil,
			GapPct: nil,
		}
	}

	gap := utils.PercentChange(c.PrevClose, price)

	decision := types.GapDecision{
		Symbol: c.Symbol,
		Action: types.GapActionKeep,
		Reason: types.GapReasonWithinThreshold,
		Price:  &price,
		GapPct: &gap,
	}

	if math.Abs(gap) > thresholdPct {
		decision.Action = types.GapActionDrop
		decision.Reason = types.GapReasonTooLarge
	}

	return decision
}
