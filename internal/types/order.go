package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

type PurchaseType string

type OrderType string

type OrderStatus string

type OrderPurpose string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderPurposeEntry OrderPurpose = "entry"
	OrderPurposeExit  OrderPurpose = "exit"
)

// ExecuteOrder is an order request sent to the broker.
type ExecuteOrder struct {
	// ClientOrderID is deterministic per (date, symbol, purpose) so retries are idempotent.
	ClientOrderID string       `yaml:"client_order_id" json:"client_order_id" validate:"required,max=36"`
	Symbol        string       `yaml:"symbol" json:"symbol" validate:"required"`
	Side          PurchaseType `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	OrderType     OrderType    `yaml:"order_type" json:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Quantity      float64      `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// Price is the limit price, or the reference price for market orders.
	Price    float64      `yaml:"price" json:"price" validate:"gte=0"`
	Purpose  OrderPurpose `yaml:"purpose" json:"purpose" validate:"required,oneof=entry exit"`
	Reason   string       `yaml:"reason" json:"reason" validate:"required"`
	Strategy string       `yaml:"strategy" json:"strategy"`
}

// OrderAck is the broker's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Status        OrderStatus `json:"status"`
}

// Order is the broker's view of an order's progress.
type Order struct {
	OrderID       string       `json:"order_id"`
	ClientOrderID string       `json:"client_order_id"`
	Symbol        string       `json:"symbol"`
	Side          PurchaseType `json:"side"`
	Quantity      float64      `json:"quantity"`
	FilledQty     float64      `json:"filled_qty"`
	AvgFillPrice  float64      `json:"avg_fill_price"`
	Status        OrderStatus  `json:"status"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OrderResult is what the order manager returns once an order is settled.
type OrderResult struct {
	OrderID       string       `json:"order_id"`
	ClientOrderID string       `json:"client_order_id"`
	Symbol        string       `json:"symbol"`
	Side          PurchaseType `json:"side"`
	Purpose       OrderPurpose `json:"purpose"`
	RequestedQty  float64      `json:"requested_qty"`
	FilledQty     float64      `json:"filled_qty"`
	AvgFillPrice  float64      `json:"avg_fill_price"`
	Status        OrderStatus  `json:"status"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	FilledAt      time.Time    `json:"filled_at"`
}

// OrderRecord is one row of the order journal.
type OrderRecord struct {
	ClientOrderID string       `json:"client_order_id"`
	OrderID       string       `json:"order_id"`
	TradeDate     string       `json:"trade_date"`
	Symbol        string       `json:"symbol"`
	Side          PurchaseType `json:"side"`
	Purpose       OrderPurpose `json:"purpose"`
	Reason        string       `json:"reason"`
	Strategy      string       `json:"strategy"`
	Quantity      float64      `json:"quantity"`
	FilledQty     float64      `json:"filled_qty"`
	AvgFillPrice  float64      `json:"avg_fill_price"`
	Status        OrderStatus  `json:"status"`
	Attempts      int          `json:"attempts"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the broker will not change this status again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusFailed:
		return true
	case OrderStatusPending, OrderStatusPartiallyFilled:
		return false
	default:
		return false
	}
}

// Validate validates the ExecuteOrder struct.
func (eo *ExecuteOrder) Validate() error {
	validate := validator.New()
	if err := validate.Struct(eo); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid execute order", err)
	}

	if eo.OrderType == OrderTypeLimit && eo.Price <= 0 {
		return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a positive price")
	}

	return nil
}

// Result converts a settled broker order into an OrderResult.
func (o Order) Result(purpose OrderPurpose, submittedAt, filledAt time.Time) OrderResult {
	return OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Purpose:       purpose,
		RequestedQty:  o.Quantity,
		FilledQty:     o.FilledQty,
		AvgFillPrice:  o.AvgFillPrice,
		Status:        o.Status,
		SubmittedAt:   submittedAt,
		FilledAt:      filledAt,
	}
}
