package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/assetra/marketx/models"
	"github.com/assetra/marketx/types"
)

type TradeEntity struct {
	ID               string                 `json:"id"`
	AssetID          string                 `json:"asset_id"`
	Price            decimal.Decimal        `json:"price"`
	Amount           decimal.Decimal        `json:"amount"`
	Total            decimal.Decimal        `json:"total"`
	MakerSide        types.OrderSide        `json:"maker_side"`
	Sequence         uint64                 `json:"sequence"`
	SettlementStatus types.SettlementStatus `json:"settlement_status"`
	ExecutedAt       time.Time              `json:"executed_at"`
}

func TradeToEntity(t *models.Trade) TradeEntity {
	return TradeEntity{
		ID:               t.ID,
		AssetID:          t.AssetID,
		Price:            t.Price,
		Amount:           t.Amount,
		Total:            t.Total,
		MakerSide:        t.MakerSide,
		Sequence:         t.Sequence,
		SettlementStatus: t.SettlementStatus,
		ExecutedAt:       t.ExecutedAt,
	}
}
