package ranker

import (
	"fmt"
	"sort"

	"github.com/rxtech-lab/argo-batch/internal/config"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

// Ungrouped is the group of symbols with no configured diversification group.
// Ungrouped symbols are not subject to the per group cap.
const Ungrouped = "ungrouped"

const volumeRatioKey = "volume_ratio_20"

// SignalRanker scores scan results and selects a diversified candidate list.
type SignalRanker struct {
	config     config.RankingConfig
	strategies map[string]config.StrategyConfig
	groups     map[string]string
	logger     *logger.Logger
}

// New creates a ranker. groups maps symbol to diversification group.
func New(cfg config.RankingConfig, strategies map[string]config.StrategyConfig, groups map[string]string, log *logger.Logger) *SignalRanker {
	return &SignalRanker{
		config:     cfg,
		strategies: strategies,
		groups:     groups,
		logger:     log.Component("ranker"),
	}
}

type scored struct {
	result types.ScanResult
	score  float64
}

// Rank scores every result, keeps the best signal per symbol, sorts by score
// descending and fills up to topN candidates, skipping symbols whose group
// already holds maxPerGroup candidates. Equal scores keep symbol order.
func (r *SignalRanker) Rank(results []types.ScanResult, regime types.Regime, topN, maxPerGroup int) ([]types.Candidate, error) {
	if topN <= 0 {
		return nil, errors.Newf(errors.ErrCodeRankingFailure, "top_n must be positive, got %d", topN)
	}

	if maxPerGroup <= 0 {
		return nil, errors.Newf(errors.ErrCodeRankingFailure, "max_per_group must be positive, got %d", maxPerGroup)
	}

	maxVolatility := 0.0

	for _, res := range results {
		if _, ok := r.strategies[res.Strategy]; !ok {
			return nil, errors.Newf(errors.ErrCodeRankingFailure, "no configuration for strategy %q", res.Strategy)
		}

		if res.PrevClose > 0 {
			maxVolatility = max(maxVolatility, res.ATR/res.PrevClose)
		}
	}

	best := make(map[string]scored)

	for _, res := range results {
		if res.PrevClose <= 0 || res.ATR <= 0 {
			r.logger.Warn("Skipping result without price or ATR",
				zap.String("symbol", res.Symbol),
				zap.String("strategy", res.Strategy),
			)

			continue
		}

		s := scored{result: res, score: r.Score(res, regime, maxVolatility)}

		current, ok := best[res.Symbol]
		if !ok || s.score > current.score || (s.score == current.score && res.Strategy < current.result.Strategy) {
			best[res.Symbol] = s
		}
	}

	ordered := make([]scored, 0, len(best))
	for _, s := range best {
		ordered = append(ordered, s)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].result.Symbol < ordered[j].result.Symbol
	})

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].score > ordered[j].score
	})

	candidates := make([]types.Candidate, 0, min(topN, len(ordered)))
	perGroup := make(map[string]int)

	for _, s := range ordered {
		if len(candidates) >= topN {
			break
		}

		group := r.groupOf(s.result.Symbol)
		if group != Ungrouped && perGroup[group] >= maxPerGroup {
			r.logger.Debug("Group cap reached, skipping",
				zap.String("symbol", s.result.Symbol),
				zap.String("group", group),
			)

			continue
		}

		perGroup[group]++

		candidates = append(candidates, r.candidate(s, group, len(candidates)+1))
	}

	r.logger.Info("Ranked scan results",
		zap.Int("results", len(results)),
		zap.Int("symbols", len(ordered)),
		zap.Int("candidates", len(candidates)),
		zap.String("regime", string(regime)),
	)

	return candidates, nil
}

// Score is the weighted composite score of one result. maxVolatility is the
// largest ATR/price in the batch and normalizes the volatility term.
func (r *SignalRanker) Score(res types.ScanResult, regime types.Regime, maxVolatility float64) float64 {
	w := r.config.Weights

	volatility := 0.0
	if maxVolatility > 0 && res.PrevClose > 0 {
		volatility = (res.ATR / res.PrevClose) / maxVolatility
	}

	volume := 0.0
	if ratio, ok := res.Indicators.Get(volumeRatioKey); ok {
		volume = clamp01(ratio / 3)
	}

	return w.Strength*res.Strength +
		w.Volatility*volatility +
		w.Regime*r.RegimeWeight(regime, res.Strategy, res.Direction) +
		w.Volume*volume
}

// RegimeWeight looks up the compatibility of strategy:direction with regime.
func (r *SignalRanker) RegimeWeight(regime types.Regime, strategy string, direction types.Direction) float64 {
	if weights, ok := r.config.RegimeCompatibility[string(regime)]; ok {
		if w, ok := weights[fmt.Sprintf("%s:%s", strategy, direction)]; ok {
			return w
		}
	}

	return r.config.DefaultRegimeWeight
}

func (r *SignalRanker) candidate(s scored, group string, rank int) types.Candidate {
	res := s.result
	cfg := r.strategies[res.Strategy]

	return types.Candidate{
		Symbol:        res.Symbol,
		Strategy:      res.Strategy,
		Direction:     res.Direction,
		EntryGroup:    cfg.Group(),
		Group:         group,
		PrevClose:     res.PrevClose,
		ATR:           res.ATR,
		StopATRMult:   cfg.StopATRMult,
		TargetATRMult: cfg.TargetATRMult,
		MaxHoldDays:   cfg.MaxHoldDays,
		Score:         s.score,
		Rank:          rank,
		Indicators:    res.Indicators.Clone(),
		Metadata:      res.Metadata,
	}
}

func (r *SignalRanker) groupOf(symbol string) string {
	if g, ok := r.groups[symbol]; ok && g != "" {
		return g
	}

	return Ungrouped
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
