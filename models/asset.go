package models

import (
	"time"

	"github.com/assetra/marketx/config"
)

var StateEnabled = "enabled"

// Asset is one tradable listing in the marketplace registry. Lanes boot
// from the enabled rows.
type Asset struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func EnabledAssets() []Asset {
	var assets []Asset
	config.DataBase.Where("state = ?", StateEnabled).Find(&assets)
	return assets
}

func AssetExists(id string) bool {
	var count int64
	config.DataBase.Model(&Asset{}).Where("id = ? AND state = ?", id, StateEnabled).Count(&count)
	return count > 0
}
