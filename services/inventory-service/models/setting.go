package models

import "time"

// SettingLowStockThreshold is the settings key holding the default
// low-stock threshold.
const SettingLowStockThreshold = "LOW_STOCK_THRESHOLD"

// Setting is a free-form key/value configuration row.
type Setting struct {
	Key       string    `gorm:"type:varchar(100);primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }
