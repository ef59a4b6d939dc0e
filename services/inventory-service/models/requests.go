package models

import "github.com/google/uuid"

// Quantities are validated by the ledger rather than by binding tags so
// that a bad quantity reports InvalidQuantity instead of a generic
// validation error. Quantities that do not decode as integers are mapped
// to InvalidQuantity by the controllers.

// StockInRequest receives goods into a warehouse.
type StockInRequest struct {
	WarehouseID uuid.UUID `json:"warehouse_id" binding:"required"`
	ItemID      uuid.UUID `json:"item_id" binding:"required"`
	Quantity    int64     `json:"quantity"`
	Note        *string   `json:"note" binding:"omitempty,max=500"`
	ActorID     *string   `json:"actor_id" binding:"omitempty,max=128"`
}

// StockOutRequest removes available goods from a warehouse.
type StockOutRequest struct {
	WarehouseID uuid.UUID `json:"warehouse_id" binding:"required"`
	ItemID      uuid.UUID `json:"item_id" binding:"required"`
	Quantity    int64     `json:"quantity"`
	Note        *string   `json:"note" binding:"omitempty,max=500"`
	ActorID     *string   `json:"actor_id" binding:"omitempty,max=128"`
}

// AdjustRequest sets the on-hand quantity to an absolute value.
type AdjustRequest struct {
	WarehouseID uuid.UUID `json:"warehouse_id" binding:"required"`
	ItemID      uuid.UUID `json:"item_id" binding:"required"`
	NewQuantity *int64    `json:"new_quantity" binding:"required"`
	Note        *string   `json:"note" binding:"omitempty,max=500"`
	ActorID     *string   `json:"actor_id" binding:"omitempty,max=128"`
}

// TransferRequest moves available goods between two warehouses.
type TransferRequest struct {
	FromWarehouseID uuid.UUID `json:"from_warehouse_id" binding:"required"`
	ToWarehouseID   uuid.UUID `json:"to_warehouse_id" binding:"required"`
	ItemID          uuid.UUID `json:"item_id" binding:"required"`
	Quantity        int64     `json:"quantity"`
	Note            *string   `json:"note" binding:"omitempty,max=500"`
	ActorID         *string   `json:"actor_id" binding:"omitempty,max=128"`
}

// ReservationRequest earmarks, releases or confirms stock against an order.
type ReservationRequest struct {
	WarehouseID uuid.UUID `json:"warehouse_id" binding:"required"`
	ItemID      uuid.UUID `json:"item_id" binding:"required"`
	Quantity    int64     `json:"quantity"`
	OrderID     string    `json:"order_id" binding:"omitempty,max=128"`
	ActorID     *string   `json:"actor_id" binding:"omitempty,max=128"`
}

// TransferResult is returned by a successful transfer.
type TransferResult struct {
	Success bool               `json:"success"`
	Source  *StockRecord       `json:"source"`
	Target  *StockRecord       `json:"target"`
	Entries []MovementLogEntry `json:"entries"`
}
