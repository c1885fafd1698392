package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/types"
)

const BreakoutName = "breakout"

// Breakout trades a close beyond the prior 20 day range on expanding volume.
//
// Params: volume_ratio_min (1.5).
type Breakout struct{}

func (s *Breakout) Name() string { return BreakoutName }

func (s *Breakout) Evaluate(ctx Context) (optional.Option[types.Signal], error) {
	closePrice, err := lastClose(ctx)
	if err != nil {
		return optional.None[types.Signal](), err
	}

	v, ok := lookup(ctx.Indicators, "highest_20", "lowest_20", "volume_ratio_20", "atr_14")
	if !ok {
		return optional.None[types.Signal](), nil
	}

	highest, lowest, volumeRatio, atr := v[0], v[1], v[2], v[3]
	if atr <= 0 || volumeRatio < param(ctx.Params, "volume_ratio_min", 1.5) {
		return optional.None[types.Signal](), nil
	}

	volumeScore := clamp01((volumeRatio - 1) / 3)

	switch {
	case closePrice > highest:
		distance := clamp01((closePrice - highest) / atr)
		return signal(types.DirectionLong, 0.5*distance+0.5*volumeScore,
			fmt.Sprintf("close above 20 day high on %.1fx volume", volumeRatio)), nil
	case closePrice < lowest:
		distance := clamp01((lowest - closePrice) / atr)
		return signal(types.DirectionShort, 0.5*distance+0.5*volumeScore,
			fmt.Sprintf("close below 20 day low on %.1fx volume", volumeRatio)), nil
	default:
		return optional.None[types.Signal](), nil
	}
}
