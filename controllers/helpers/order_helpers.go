package helpers

import (
	"github.com/gookit/validate"
	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

type CreateOrderParams struct {
	AssetID string              `json:"asset_id" form:"asset_id" validate:"required"`
	Side    types.OrderSide     `json:"side" form:"side" validate:"required|ValidateSide"`
	Type    types.OrderType     `json:"type" form:"type" validate:"ValidateType"`
	Price   decimal.NullDecimal `json:"price" form:"price" validate:"ValidatePrice"`
	Amount  decimal.Decimal     `json:"amount" form:"amount" validate:"required|ValidateAmount"`
	Maker   string              `json:"maker" form:"maker" validate:"required"`
}

func (p CreateOrderParams) Messages() map[string]string {
	return validate.MS{
		"required":        "market.order.invalid_{field}",
		"Amount.required": types.RejectInvalidAmount,
		"ValidateSide":    types.RejectInvalidSide,
		"ValidateType":    types.RejectInvalidType,
		"ValidatePrice":   types.RejectInvalidPrice,
		"ValidateAmount":  types.RejectInvalidAmount,
	}
}

func (p CreateOrderParams) ValidateSide(Side types.OrderSide) bool {
	return Side == types.SideBuy || Side == types.SideSell
}

func (p CreateOrderParams) ValidateType(Type types.OrderType) bool {
	if Type == types.TypeMarket && p.Price.Valid {
		return false
	} else if Type == types.TypeLimit && !p.Price.Valid {
		return false
	}

	return len(Type) == 0 || Type == types.TypeLimit || Type == types.TypeMarket
}

func (p CreateOrderParams) ValidatePrice(Price decimal.NullDecimal) bool {
	if Price.Valid {
		return Price.Decimal.IsPositive()
	}

	return true
}

func (p CreateOrderParams) ValidateAmount(Amount decimal.Decimal) bool {
	return Amount.IsPositive()
}

func (p CreateOrderParams) BuildOrder() *matching.Order {
	if len(p.Type) == 0 {
		p.Type = types.TypeLimit
	}

	return &matching.Order{
		AssetID: p.AssetID,
		Maker:   p.Maker,
		Side:    p.Side,
		Type:    p.Type,
		Price:   p.Price.Decimal,
		Amount:  p.Amount,
	}
}
