package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecuteOrderValidate(t *testing.T) {
	tests := []struct {
		name        string
		order       ExecuteOrder
		shouldError bool
	}{
		{
			name: "valid market entry",
			order: ExecuteOrder{
				ClientOrderID: "entry-2026-10-15-AAPL",
				Symbol:        "AAPL",
				Side:          PurchaseTypeBuy,
				OrderType:     OrderTypeMarket,
				Quantity:      10,
				Price:         101,
				Purpose:       OrderPurposeEntry,
				Reason:        "rsi_mean_reversion",
				Strategy:      "rsi_mean_reversion",
			},
			shouldError: false,
		},
		{
			name: "missing client order id",
			order: ExecuteOrder{
				ClientOrderID: "",
				Symbol:        "AAPL",
				Side:          PurchaseTypeBuy,
				OrderType:     OrderTypeMarket,
				Quantity:      10,
				Price:         0,
				Purpose:       OrderPurposeEntry,
				Reason:        "signal",
				Strategy:      "",
			},
			shouldError: true,
		},
		{
			name: "zero quantity",
			order: ExecuteOrder{
				ClientOrderID: "exit-2026-10-15-AAPL",
				Symbol:        "AAPL",
				Side:          PurchaseTypeSell,
				OrderType:     OrderTypeMarket,
				Quantity:      0,
				Price:         0,
				Purpose:       OrderPurposeExit,
				Reason:        ExitReasonStopLoss,
				Strategy:      "",
			},
			shouldError: true,
		},
		{
			name: "limit without price",
			order: ExecuteOrder{
				ClientOrderID: "exit-2026-10-15-AAPL",
				Symbol:        "AAPL",
				Side:          PurchaseTypeSell,
				OrderType:     OrderTypeLimit,
				Quantity:      5,
				Price:         0,
				Purpose:       OrderPurposeExit,
				Reason:        ExitReasonTakeProfit,
				Strategy:      "",
			},
			shouldError: true,
		},
		{
			name: "unknown purpose",
			order: ExecuteOrder{
				ClientOrderID: "x",
				Symbol:        "AAPL",
				Side:          PurchaseTypeSell,
				OrderType:     OrderTypeMarket,
				Quantity:      5,
				Price:         0,
				Purpose:       OrderPurpose("hedge"),
				Reason:        "manual",
				Strategy:      "",
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusRejected.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusPartiallyFilled.IsTerminal())
}

func TestOrderResult(t *testing.T) {
	submitted := time.Date(2026, 10, 15, 13, 30, 0, 0, time.UTC)
	filled := submitted.Add(2 * time.Second)

	order := Order{
		OrderID:       "42",
		ClientOrderID: "entry-2026-10-15-AAPL",
		Symbol:        "AAPL",
		Side:          PurchaseTypeBuy,
		Quantity:      10,
		FilledQty:     10,
		AvgFillPrice:  101,
		Status:        OrderStatusFilled,
		UpdatedAt:     filled,
	}

	result := order.Result(OrderPurposeEntry, submitted, filled)
	assert.Equal(t, "42", result.OrderID)
	assert.Equal(t, OrderPurposeEntry, result.Purpose)
	assert.Equal(t, 10.0, result.RequestedQty)
	assert.Equal(t, 101.0, result.AvgFillPrice)
	assert.Equal(t, filled, result.FilledAt)
}
