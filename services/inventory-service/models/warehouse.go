package models

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse is a stocking location. Warehouses are never hard-deleted;
// deactivation keeps past movements referentially intact.
type Warehouse struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Code      string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Address   *string   `gorm:"type:varchar(500)" json:"address,omitempty"`
	Phone     *string   `gorm:"type:varchar(50)" json:"phone,omitempty"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateWarehouseRequest is the payload for registering a warehouse.
type CreateWarehouseRequest struct {
	Name    string  `json:"name" binding:"required,max=200"`
	Code    string  `json:"code" binding:"required,max=50"`
	Address *string `json:"address" binding:"omitempty,max=500"`
	Phone   *string `json:"phone" binding:"omitempty,max=50"`
}

// UpdateWarehouseRequest carries the fields to change; nil means unchanged.
type UpdateWarehouseRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=200"`
	Code     *string `json:"code" binding:"omitempty,min=1,max=50"`
	Address  *string `json:"address" binding:"omitempty,max=500"`
	Phone    *string `json:"phone" binding:"omitempty,max=50"`
	IsActive *bool   `json:"is_active"`
}
