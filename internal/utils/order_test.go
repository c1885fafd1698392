package utils

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsTestSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestRoundToDecimalPrecision() {
	tests := []struct {
		name      string
		quantity  float64
		precision int
		expected  float64
	}{
		{name: "floors rather than rounds", quantity: 1.23456789, precision: 4, expected: 1.2345},
		{name: "whole shares", quantity: 12.99, precision: 0, expected: 12},
		{name: "already exact", quantity: 0.5, precision: 8, expected: 0.5},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.expected, RoundToDecimalPrecision(tc.quantity, tc.precision), 1e-12)
		})
	}
}

func (suite *UtilsTestSuite) TestFormatQuantity() {
	suite.Equal("0.12345678", FormatQuantity(0.123456789, 8))
	suite.Equal("10", FormatQuantity(10.7, 0))
}

func (suite *UtilsTestSuite) TestFloorShares() {
	suite.Equal(float64(9), FloorShares(999, 100))
	suite.Equal(float64(0), FloorShares(50, 100))
	suite.Equal(float64(0), FloorShares(1000, 0))
}

func (suite *UtilsTestSuite) TestPercentChange() {
	suite.InDelta(3.0, PercentChange(100, 103), 1e-9)
	suite.InDelta(-2.5, PercentChange(100, 97.5), 1e-9)
	suite.Equal(float64(0), PercentChange(0, 10))
}
