package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

// Order is the durable history row behind the in-memory book. The book is
// authoritative for open state; rows here serve status lookups after an
// order leaves the book.
type Order struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	AssetID   string            `json:"asset_id" gorm:"index"`
	Maker     string            `json:"maker"`
	Side      types.OrderSide   `json:"side"`
	Type      types.OrderType   `json:"type" gorm:"column:ord_type"`
	Price     decimal.Decimal   `json:"price" gorm:"type:decimal(32,16)"`
	Amount    decimal.Decimal   `json:"amount" gorm:"type:decimal(32,16)"`
	Filled    decimal.Decimal   `json:"filled" gorm:"type:decimal(32,16)"`
	Status    types.OrderStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UpsertOrder writes the current state of a book order, replacing any
// earlier row for the same id.
func UpsertOrder(o *matching.Order) error {
	row := Order{
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

	return config.DataBase.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filled", "status", "updated_at"}),
	}).Create(&row).Error
}

func GetOrder(id string) (*Order, error) {
	var row Order

	result := config.DataBase.First(&row, "id = ?", id)
	if result.Error != nil {
		return nil, result.Error
	}

	return &row, nil
}
