package types

import "time"

// Bar is one daily OHLCV bar for a symbol.
type Bar struct {
	Symbol string    `json:"symbol" csv:"symbol"`
	Time   time.Time `json:"time" csv:"time"`
	Open   float64   `json:"open" csv:"open"`
	High   float64   `json:"high" csv:"high"`
	Low    float64   `json:"low" csv:"low"`
	Close  float64   `json:"close" csv:"close"`
	Volume float64   `json:"volume" csv:"volume"`
}

// PriceUpdate is a single live price observation from a streaming feed.
type PriceUpdate struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// LastBar returns the most recent bar of a history, or false when empty.
func LastBar(history []Bar) (Bar, bool) {
	if len(history) == 0 {
		return Bar{}, false
	}

	return history[len(history)-1], true
}
