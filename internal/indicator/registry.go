package indicator

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// IndicatorRegistry manages all available indicators.
type IndicatorRegistry interface {
	RegisterIndicator(indicator Indicator) error
	GetIndicator(key string) (Indicator, error)
	ListIndicators() []string
	RemoveIndicator(key string) error
	// ComputeAll evaluates every registered indicator on history. Indicators
	// without enough history are left out of the result.
	ComputeAll(history []types.Bar) (types.IndicatorValues, error)
	// MaxLookback is the largest Lookback of any registered indicator.
	MaxLookback() int
}

// IndicatorRegistryV1 manages all available indicators.
type IndicatorRegistryV1 struct {
	indicators map[string]Indicator
	mu         sync.RWMutex
}

// NewIndicatorRegistry creates a new indicator registry.
func NewIndicatorRegistry() IndicatorRegistry {
	return &IndicatorRegistryV1{
		indicators: make(map[string]Indicator),
		mu:         sync.RWMutex{},
	}
}

// NewDefaultRegistry returns a registry holding the indicators the built-in
// strategies, the regime detector and the exit rules read.
func NewDefaultRegistry() IndicatorRegistry {
	registry := NewIndicatorRegistry()

	for _, ind := range []Indicator{
		NewMAWithPeriod(20),
		NewMAWithPeriod(50),
		NewMAWithPeriod(200),
		NewEMAWithPeriod(20),
		NewRSI(),
		NewATR(),
		NewADX(),
		NewBollingerBands(),
		NewHighest(20),
		NewLowest(20),
		NewVolumeRatio(20),
	} {
		// keys are unique by construction
		_ = registry.RegisterIndicator(ind)
	}

	return registry
}

// RegisterIndicator adds an indicator to the registry.
func (r *IndicatorRegistryV1) RegisterIndicator(indicator Indicator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := indicator.Key()
	if _, exists := r.indicators[k]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "RegisterIndicator: indicator with key %s already registered", k)
	}

	r.indicators[k] = indicator

	return nil
}

// GetIndicator retrieves an indicator by key.
func (r *IndicatorRegistryV1) GetIndicator(key string) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indicator, exists := r.indicators[key]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "GetIndicator: indicator with key %s not found", key)
	}

	return indicator, nil
}

// ListIndicators returns the sorted keys of all registered indicators.
func (r *IndicatorRegistryV1) ListIndicators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.indicators))
	for k := range r.indicators {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// RemoveIndicator removes an indicator from the registry.
func (r *IndicatorRegistryV1) RemoveIndicator(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indicators[key]; !exists {
		return errors.Newf(errors.ErrCodeIndicatorNotFound, "RemoveIndicator: indicator with key %s not found", key)
	}

	delete(r.indicators, key)

	return nil
}

// ComputeAll implements IndicatorRegistry.
func (r *IndicatorRegistryV1) ComputeAll(history []types.Bar) (types.IndicatorValues, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make(types.IndicatorValues)

	for k, ind := range r.indicators {
		out, err := ind.Compute(history)
		if err != nil {
			if errors.IsInsufficientDataError(err) {
				continue
			}

			return nil, errors.Wrapf(errors.ErrCodeIndicatorCalculation, err, "failed to compute %s", k)
		}

		for name, v := range out {
			values[name] = v
		}
	}

	return values, nil
}

// MaxLookback implements IndicatorRegistry.
func (r *IndicatorRegistryV1) MaxLookback() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	longest := 0
	for _, ind := range r.indicators {
		longest = max(longest, ind.Lookback())
	}

	return longest
}
