package models

import (
	"time"

	"github.com/google/uuid"
)

// MovementType classifies a quantity change.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
)

// MovementLogEntry is an immutable audit fact. For every entry
// QuantityAfter - QuantityBefore == QuantityDelta.
type MovementLogEntry struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	WarehouseID    uuid.UUID    `gorm:"type:uuid;not null;index:idx_movement_pair,priority:1" json:"warehouse_id"`
	ItemID         uuid.UUID    `gorm:"type:uuid;not null;index:idx_movement_pair,priority:2;index" json:"item_id"`
	MovementType   MovementType `gorm:"type:varchar(20);not null" json:"movement_type"`
	QuantityDelta  int64        `gorm:"not null" json:"quantity_delta"`
	QuantityBefore int64        `gorm:"not null" json:"quantity_before"`
	QuantityAfter  int64        `gorm:"not null" json:"quantity_after"`
	Note           *string      `gorm:"type:varchar(500)" json:"note,omitempty"`
	ActorID        *string      `gorm:"type:varchar(128)" json:"actor_id,omitempty"`
	// Version is the stock row version this movement produced.
	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (MovementLogEntry) TableName() string { return "movement_logs" }

// LogFilter narrows a movement log query. Zero values mean "any".
type LogFilter struct {
	WarehouseID *uuid.UUID
	ItemID      *uuid.UUID
	Limit       int
}

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// Normalize clamps Limit into [1, MaxLogLimit], defaulting to DefaultLogLimit.
func (f LogFilter) Normalize() LogFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLogLimit
	case f.Limit > MaxLogLimit:
		f.Limit = MaxLogLimit
	}
	return f
}

// Matches reports whether e passes the warehouse and item filters.
func (f LogFilter) Matches(e *MovementLogEntry) bool {
	if f.WarehouseID != nil && *f.WarehouseID != e.WarehouseID {
		return false
	}
	if f.ItemID != nil && *f.ItemID != e.ItemID {
		return false
	}
	return true
}

// PinsPair reports whether the filter selects a single (warehouse, item)
// pair's history.
func (f LogFilter) PinsPair() bool {
	return f.WarehouseID != nil && f.ItemID != nil
}

// NewestFirst orders entries for this filter. A single pair's history is
// ordered by version, which is its commit order regardless of wall clocks.
// Mixed histories are ordered by created_at, then version.
func (f LogFilter) NewestFirst(a, b *MovementLogEntry) bool {
	if f.PinsPair() && a.Version != b.Version {
		return a.Version > b.Version
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Version > b.Version
}
