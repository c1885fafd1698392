package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-batch/internal/types"
)

// BarGenerator produces deterministic daily bars for scanner and pipeline tests.
type BarGenerator struct {
	rng *rand.Rand
}

// NewBarGenerator creates a generator. Use a fixed seed for reproducible tests.
func NewBarGenerator(seed int64) *BarGenerator {
	return &BarGenerator{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // test data
	}
}

// BarConfig describes one generated series.
type BarConfig struct {
	Symbol string
	// End is the date of the last bar. Weekends are skipped walking backwards.
	End          time.Time
	Count        int
	InitialPrice float64
	// Volatility is the daily standard deviation of returns (0.01 = 1%).
	Volatility float64
	// Drift is added to every daily return (0.002 = +0.2% per day).
	Drift      float64
	VolumeBase float64
}

// DefaultBarConfig returns a year of quiet daily bars ending on 2026-10-14.
func DefaultBarConfig(symbol string) BarConfig {
	return BarConfig{
		Symbol:       symbol,
		End:          time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
		Count:        250,
		InitialPrice: 100,
		Volatility:   0.01,
		Drift:        0,
		VolumeBase:   1_000_000,
	}
}

// Generate returns Count bars, oldest first, following a geometric random walk.
func (g *BarGenerator) Generate(config BarConfig) []types.Bar {
	dates := tradingDates(config.End, config.Count)
	bars := make([]types.Bar, config.Count)
	price := config.InitialPrice

	for i := range bars {
		open := price

		// Box-Muller
		u1 := math.Max(g.rng.Float64(), 1e-12)
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		closePrice := open * (1 + config.Volatility*z + config.Drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		high := math.Max(open, closePrice) * (1 + g.rng.Float64()*config.Volatility*0.5)
		low := math.Min(open, closePrice) * (1 - g.rng.Float64()*config.Volatility*0.5)
		volume := config.VolumeBase * (0.7 + g.rng.Float64()*0.6)

		bars[i] = types.Bar{
			Symbol: config.Symbol,
			Time:   dates[i],
			Open:   round(open, 4),
			High:   round(high, 4),
			Low:    round(low, 4),
			Close:  round(closePrice, 4),
			Volume: round(volume, 0),
		}

		price = closePrice
	}

	return bars
}

// GenerateUniverse returns one series per symbol with slightly varied start prices.
func (g *BarGenerator) GenerateUniverse(symbols []string, base BarConfig) map[string][]types.Bar {
	out := make(map[string][]types.Bar, len(symbols))

	for _, symbol := range symbols {
		config := base
		config.Symbol = symbol
		config.InitialPrice = base.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		out[symbol] = g.Generate(config)
	}

	return out
}

func tradingDates(end time.Time, count int) []time.Time {
	dates := make([]time.Time, count)
	day := end

	for i := count - 1; i >= 0; i-- {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}

		dates[i] = day
		day = day.AddDate(0, 0, -1)
	}

	return dates
}

func round(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
