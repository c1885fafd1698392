package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/types"
)

const RSIMeanReversionName = "rsi_mean_reversion"

// RSIMeanReversion buys oversold pullbacks inside a long-term uptrend and
// sells overbought rallies inside a long-term downtrend.
//
// Params: rsi_oversold (30), rsi_overbought (70).
type RSIMeanReversion struct{}

func (s *RSIMeanReversion) Name() string { return RSIMeanReversionName }

func (s *RSIMeanReversion) Evaluate(ctx Context) (optional.Option[types.Signal], error) {
	closePrice, err := lastClose(ctx)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	v, ok := lookup(ctx.Indicators, "rsi_14", "sma_200")
	if !ok {
		return optional.None[types.Signal](), nil
	}

	rsi, trend := v[0], v[1]
	oversold := param(ctx.Params, "rsi_oversold", 30)
	overbought := param(ctx.Params, "rsi_overbought", 70)

	switch {
	case rsi < oversold && closePrice > trend:
		strength := (oversold - rsi) / oversold
		if lower, ok := ctx.Indicators.Get("bb_lower_20"); ok && closePrice <= lower {
			strength += 0.25
		}

		return signal(types.DirectionLong, strength, fmt.Sprintf("rsi %.1f below %.0f above sma_200", rsi, oversold)), nil
	case rsi > overbought && closePrice < trend:
		strength := (rsi - overbought) / (100 - overbought)
		if upper, ok := ctx.Indicators.Get("bb_upper_20"); ok && closePrice >= upper {
			strength += 0.25
		}

		return signal(types.DirectionShort, strength, fmt.Sprintf("rsi %.1f above %.0f below sma_200", rsi, overbought)), nil
	default:
		return optional.None[types.Signal](), nil
	}
}
