package strategy

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/types"
)

const TrendPullbackName = "trend_pullback"

// TrendPullback enters an established trend when price pulls back to the
// 20 EMA. Trend is sma_20 vs sma_50 with adx confirming strength.
//
// Params: adx_min (20), pullback_atr (0.5).
type TrendPullback struct{}

func (s *TrendPullback) Name() string { return TrendPullbackName }

func (s *TrendPullback) Evaluate(ctx Context) (optional.Option[types.Signal], error) {
	closePrice, err := lastClose(ctx)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	v, ok := lookup(ctx.Indicators, "sma_20", "sma_50", "ema_20", "adx_14", "atr_14")
	if !ok {
		return optional.None[types.Signal](), nil
	}

	fast, slow, ema, adx, atr := v[0], v[1], v[2], v[3], v[4]
	if atr <= 0 || adx < param(ctx.Params, "adx_min", 20) {
		return optional.None[types.Signal](), nil
	}

	nearEMA := math.Abs(closePrice-ema) <= param(ctx.Params, "pullback_atr", 0.5)*atr
	if !nearEMA {
		return optional.None[types.Signal](), nil
	}

	strength := adx / 50
	reason := fmt.Sprintf("pullback to ema_20 with adx %.1f", adx)

	switch {
	case fast > slow && closePrice > slow:
		return signal(types.DirectionLong, strength, reason), nil
	case fast < slow && closePrice < slow:
		return signal(types.DirectionShort, strength, reason), nil
	default:
		return optional.None[types.Signal](), nil
	}
}
