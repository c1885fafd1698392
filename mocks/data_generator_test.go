package mocks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarGenerator_Generate(t *testing.T) {
	config := DefaultBarConfig("AAPL")
	config.Count = 100

	bars := NewBarGenerator(42).Generate(config)
	require.Len(t, bars, 100)

	for i, b := range bars {
		assert.Equal(t, "AAPL", b.Symbol)
		assert.Positive(t, b.Low, "index %d", i)
		assert.GreaterOrEqual(t, b.High, b.Low, "index %d", i)
		assert.GreaterOrEqual(t, b.High, b.Close, "index %d", i)
		assert.LessOrEqual(t, b.Low, b.Close, "index %d", i)
		assert.NotEqual(t, time.Saturday, b.Time.Weekday())
		assert.NotEqual(t, time.Sunday, b.Time.Weekday())

		if i > 0 {
			assert.True(t, b.Time.After(bars[i-1].Time), "index %d", i)
		}
	}

	assert.Equal(t, config.End, bars[len(bars)-1].Time)
}

func TestBarGenerator_Reproducible(t *testing.T) {
	config := DefaultBarConfig("MSFT")

	a := NewBarGenerator(7).Generate(config)
	b := NewBarGenerator(7).Generate(config)
	assert.Equal(t, a, b)

	c := NewBarGenerator(8).Generate(config)
	assert.NotEqual(t, a, c)
}

func TestBarGenerator_Drift(t *testing.T) {
	config := DefaultBarConfig("UP")
	config.Volatility = 0.001
	config.Drift = 0.005

	bars := NewBarGenerator(1).Generate(config)
	assert.Greater(t, bars[len(bars)-1].Close, bars[0].Close*2)
}

func TestBarGenerator_Universe(t *testing.T) {
	universe := NewBarGenerator(3).GenerateUniverse([]string{"A", "B", "C"}, DefaultBarConfig(""))
	require.Len(t, universe, 3)

	for symbol, bars := range universe {
		assert.Len(t, bars, 250)
		assert.Equal(t, symbol, bars[0].Symbol)
	}
}
