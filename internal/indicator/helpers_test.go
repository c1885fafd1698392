package indicator

import (
	"time"

	"github.com/rxtech-lab/argo-batch/internal/types"
)

func barsFromCloses(closes ...float64) []types.Bar {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{
			Symbol: "TEST",
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}

	return bars
}

func risingBars(n int, start, step float64) []types.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}

	return barsFromCloses(closes...)
}
