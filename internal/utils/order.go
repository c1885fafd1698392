package utils

import (
	"github.com/shopspring/decimal"
)

// RoundToDecimalPrecision floors the quantity to the given number of decimal places.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	return decimal.NewFromFloat(quantity).RoundFloor(int32(decimalPrecision)).InexactFloat64()
}

// FormatQuantity renders a quantity with a fixed number of decimal places, as exchanges expect.
func FormatQuantity(quantity float64, decimalPrecision int) string {
	return decimal.NewFromFloat(quantity).RoundFloor(int32(decimalPrecision)).StringFixed(int32(decimalPrecision))
}

// FloorShares returns the whole number of shares affordable with amount at price.
func FloorShares(amount, price float64) float64 {
	if amount <= 0 || price <= 0 {
		return 0
	}

	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price)).Floor().InexactFloat64()
}

// PercentChange returns (to - from) / from * 100.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}

	return decimal.NewFromFloat(to).Sub(decimal.NewFromFloat(from)).
		Div(decimal.NewFromFloat(from)).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()
}
