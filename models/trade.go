package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

const recentTradesMax = 200

// Trade is the durable record of one execution, keyed by the deterministic
// trade id so replays and retries collapse onto the same row.
type Trade struct {
	ID               string                 `json:"id" gorm:"primaryKey"`
	AssetID          string                 `json:"asset_id" gorm:"index"`
	MakerOrderID     string                 `json:"maker_order_id"`
	TakerOrderID     string                 `json:"taker_order_id"`
	Maker            string                 `json:"maker"`
	Taker            string                 `json:"taker"`
	MakerSide        types.OrderSide        `json:"maker_side"`
	Price            decimal.Decimal        `json:"price" gorm:"type:decimal(32,16)"`
	Amount           decimal.Decimal        `json:"amount" gorm:"type:decimal(32,16)"`
	Total            decimal.Decimal        `json:"total" gorm:"type:decimal(32,16)"`
	Sequence         uint64                 `json:"sequence"`
	SettlementStatus types.SettlementStatus `json:"settlement_status"`
	TxRef            string                 `json:"tx_ref"`
	ExecutedAt       time.Time              `json:"executed_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func CreateTrade(t *matching.Trade) error {
	row := Trade{
		ID:               t.ID.String(),
		AssetID:          t.AssetID,
		MakerOrderID:     t.MakerOrderID.String(),
		TakerOrderID:     t.TakerOrderID.String(),
		Maker:            t.Maker,
		Taker:            t.Taker,
		MakerSide:        t.MakerSide,
		Price:            t.Price,
		Amount:           t.Amount,
		Total:            t.Total,
		Sequence:         t.Sequence,
		SettlementStatus: t.SettlementStatus,
		ExecutedAt:       t.ExecutedAt,
	}

	return config.DataBase.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// UpdateTradeSettlement records the terminal settlement outcome for a trade.
func UpdateTradeSettlement(id string, status types.SettlementStatus, txRef string) error {
	return config.DataBase.Model(&Trade{}).Where("id = ?", id).Updates(map[string]interface{}{
		"settlement_status": status,
		"tx_ref":            txRef,
	}).Error
}

func RecentTrades(assetID string, limit int) []Trade {
	if limit <= 0 || limit > recentTradesMax {
		limit = recentTradesMax
	}

	var trades []Trade
	config.DataBase.Where("asset_id = ?", assetID).Order("sequence desc").Limit(limit).Find(&trades)
	return trades
}
