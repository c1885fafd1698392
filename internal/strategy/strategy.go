package strategy

import (
	"sort"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// Context is everything a strategy sees for one symbol on one scan.
type Context struct {
	Symbol     string
	History    []types.Bar
	Indicators types.IndicatorValues
	Regime     types.Regime
	Params     map[string]float64
}

// Strategy evaluates a symbol's end-of-day state and optionally emits a signal.
type Strategy interface {
	Name() string
	// Evaluate returns None when the symbol does not match. Missing
	// indicators are treated as no match, not as an error.
	Evaluate(ctx Context) (optional.Option[types.Signal], error)
}

// Factory builds a strategy instance.
type Factory func() Strategy

// builtins is the closed set of strategies the scanner can run.
var builtins = map[string]Factory{
	RSIMeanReversionName: func() Strategy { return &RSIMeanReversion{} },
	TrendPullbackName:    func() Strategy { return &TrendPullback{} },
	BreakoutName:         func() Strategy { return &Breakout{} },
}

// Names returns the sorted names of the built-in strategies.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// New returns a built-in strategy by name.
func New(name string) (Strategy, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnsupportedStrategy, "unknown strategy %q", name)
	}

	return factory(), nil
}

// Registry holds the strategies enabled for a run, in name order.
type Registry struct {
	strategies []Strategy
}

// NewRegistry instantiates the named strategies. Unknown names are a configuration error.
func NewRegistry(names []string) (*Registry, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	strategies := make([]Strategy, 0, len(sorted))

	for _, name := range sorted {
		s, err := New(name)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "invalid strategy configuration", err)
		}

		strategies = append(strategies, s)
	}

	return &Registry{strategies: strategies}, nil
}

// Strategies returns the enabled strategies.
func (r *Registry) Strategies() []Strategy {
	return r.strategies
}

func param(params map[string]float64, name string, fallback float64) float64 {
	if v, ok := params[name]; ok {
		return v
	}

	return fallback
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func lookup(values types.IndicatorValues, keys ...string) ([]float64, bool) {
	out := make([]float64, len(keys))

	for i, k := range keys {
		v, ok := values.Get(k)
		if !ok {
			return nil, false
		}

		out[i] = v
	}

	return out, true
}

func signal(direction types.Direction, strength float64, reason string) optional.Option[types.Signal] {
	return optional.Some(types.Signal{
		Direction: direction,
		Strength:  clamp01(strength),
		Reason:    reason,
		Metadata:  nil,
	})
}

func lastClose(ctx Context) (float64, error) {
	bar, ok := types.LastBar(ctx.History)
	if !ok {
		return 0, errors.NewInsufficientDataError(1, 0, ctx.Symbol, "no bars to evaluate")
	}

	return bar.Close, nil
}
