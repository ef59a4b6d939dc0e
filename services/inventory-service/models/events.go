package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventStockMoved = "inventory.stock_moved"
	EventLowStock   = "inventory.low_stock"
)

// StockMovedEvent is published once per committed movement log entry.
type StockMovedEvent struct {
	EventType      string       `json:"event_type"`
	MovementID     uuid.UUID    `json:"movement_id"`
	WarehouseID    uuid.UUID    `json:"warehouse_id"`
	ItemID         uuid.UUID    `json:"item_id"`
	MovementType   MovementType `json:"movement_type"`
	QuantityDelta  int64        `json:"quantity_delta"`
	QuantityBefore int64        `json:"quantity_before"`
	QuantityAfter  int64        `json:"quantity_after"`
	Version        int64        `json:"version"`
	Note           *string      `json:"note,omitempty"`
	ActorID        *string      `json:"actor_id,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// NewStockMovedEvent mirrors e as an event.
func NewStockMovedEvent(e *MovementLogEntry) StockMovedEvent {
	return StockMovedEvent{
		EventType:      EventStockMoved,
		MovementID:     e.ID,
		WarehouseID:    e.WarehouseID,
		ItemID:         e.ItemID,
		MovementType:   e.MovementType,
		QuantityDelta:  e.QuantityDelta,
		QuantityBefore: e.QuantityBefore,
		QuantityAfter:  e.QuantityAfter,
		Version:        e.Version,
		Note:           e.Note,
		ActorID:        e.ActorID,
		Timestamp:      e.CreatedAt,
	}
}

// LowStockEvent is published when a mutation leaves a row's available
// quantity below the low-stock threshold.
type LowStockEvent struct {
	EventType   string    `json:"event_type"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	ItemID      uuid.UUID `json:"item_id"`
	Quantity    int64     `json:"quantity"`
	Reserved    int64     `json:"reserved"`
	Available   int64     `json:"available"`
	Threshold   int64     `json:"threshold"`
	Timestamp   time.Time `json:"timestamp"`
}

// StockCommand is an asynchronous ledger command received from a queue.
type StockCommand struct {
	OperationID   string     `json:"operation_id" validate:"required,max=128"`
	Type          string     `json:"type" validate:"required,oneof=in out adjust transfer reserve release confirm"`
	WarehouseID   uuid.UUID  `json:"warehouse_id" validate:"required"`
	ToWarehouseID *uuid.UUID `json:"to_warehouse_id" validate:"required_if=Type transfer"`
	ItemID        uuid.UUID  `json:"item_id" validate:"required"`
	Quantity      int64      `json:"quantity"`
	NewQuantity   *int64     `json:"new_quantity" validate:"required_if=Type adjust"`
	OrderID       string     `json:"order_id" validate:"max=128"`
	Note          *string    `json:"note" validate:"omitempty,max=500"`
	ActorID       *string    `json:"actor_id" validate:"omitempty,max=128"`
}
