package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

type OrderEntity struct {
	ID        string            `json:"id"`
	AssetID   string            `json:"asset_id"`
	Maker     string            `json:"maker"`
	Side      types.OrderSide   `json:"side"`
	Type      types.OrderType   `json:"type"`
	Price     decimal.Decimal   `json:"price"`
	Amount    decimal.Decimal   `json:"amount"`
	Filled    decimal.Decimal   `json:"filled"`
	Status    types.OrderStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

func OrderToEntity(o *matching.Order) OrderEntity {
	return OrderEntity{
		ID:        o.ID.String(),
		AssetID:   o.AssetID,
		Maker:     o.Maker,
		Side:      o.Side,
		Type:      o.Type,
		Price:     o.Price,
		Amount:    o.Amount,
		Filled:    o.Filled,
		Status:    o.Status(),
		CreatedAt: o.CreatedAt,
	}
}
