package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/types"
)

type Order struct {
	ID        uuid.UUID       `json:"id"`
	AssetID   string          `json:"asset_id"`
	Maker     string          `json:"maker"`
	Side      types.OrderSide `json:"side"`
	Type      types.OrderType `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Filled    decimal.Decimal `json:"filled"`
	Cancelled bool            `json:"cancelled"`
	CreatedAt time.Time       `json:"created_at"`

	// Counter breaks exact CreatedAt ties deterministically. Assigned by the
	// owning book the first time the order enters a matching pass.
	Counter uint64 `json:"counter"`
}

func (o *Order) UnfilledAmount() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

func (o *Order) Fill(amount decimal.Decimal) {
	o.Filled = o.Filled.Add(amount)
}

func (o *Order) IsFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Amount)
}

func (o *Order) IsAsk() bool {
	return o.Side == types.SideSell
}

// Status is a pure function of filled vs amount plus explicit cancellation.
func (o *Order) Status() types.OrderStatus {
	switch {
	case o.Cancelled:
		return types.StatusCancelled
	case o.IsFilled():
		return types.StatusFilled
	case o.Filled.IsPositive():
		return types.StatusPartial
	default:
		return types.StatusOpen
	}
}

// IsCrossed reports whether the order would execute against a resting order
// at the given price. Market orders always cross.
func (o *Order) IsCrossed(price decimal.Decimal) bool {
	if o.Type == types.TypeMarket {
		return true
	}

	if o.IsAsk() {
		return price.GreaterThanOrEqual(o.Price)
	}

	return price.LessThanOrEqual(o.Price)
}
