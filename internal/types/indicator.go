package types

type IndicatorType string

const (
	IndicatorTypeRSI         IndicatorType = "rsi"
	IndicatorTypeADX         IndicatorType = "adx"
	IndicatorTypeEMA         IndicatorType = "ema"
	IndicatorTypeATR         IndicatorType = "atr"
	IndicatorTypeMA          IndicatorType = "sma"
	IndicatorTypeHighest     IndicatorType = "highest"
	IndicatorTypeLowest      IndicatorType = "lowest"
	IndicatorTypeVolumeRatio IndicatorType = "volume_ratio"
)

// IndicatorValues maps an indicator key such as "rsi_14" to its latest value.
type IndicatorValues map[string]float64

// Get returns the value for key and whether it is present.
func (v IndicatorValues) Get(key string) (float64, bool) {
	value, ok := v[key]

	return value, ok
}

// Clone returns a copy that is safe to hand to another goroutine.
func (v IndicatorValues) Clone() IndicatorValues {
	if v == nil {
		return nil
	}

	out := make(IndicatorValues, len(v))
	for k, val := range v {
		out[k] = val
	}

	return out
}
