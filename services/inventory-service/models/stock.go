package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StockRecord is the on-hand and reserved quantity of one item at one
// warehouse. Exactly one row exists per (warehouse, item) once anything has
// been stocked there.
type StockRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WarehouseID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_item,priority:1" json:"warehouse_id"`
	ItemID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_item,priority:2;index" json:"item_id"`
	Quantity         int64     `gorm:"not null;default:0;check:chk_stock_quantity,quantity >= reserved_quantity" json:"quantity"`
	ReservedQuantity int64     `gorm:"not null;default:0;check:chk_stock_reserved,reserved_quantity >= 0" json:"reserved_quantity"`
	// Version increases by one with every mutation of the row.
	Version     int64     `gorm:"not null;default:0" json:"version"`
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
}

func (StockRecord) TableName() string { return "stock_records" }

// Available is the sellable quantity: on-hand minus reserved.
func (s StockRecord) Available() int64 {
	return s.Quantity - s.ReservedQuantity
}

// MarshalJSON adds the derived available_quantity to the wire form.
func (s StockRecord) MarshalJSON() ([]byte, error) {
	type plain StockRecord
	return json.Marshal(struct {
		plain
		AvailableQuantity int64 `json:"available_quantity"`
	}{plain(s), s.Available()})
}

// NewStockRecord returns an empty row for the pair, as created lazily on
// first stock-in.
func NewStockRecord(warehouseID, itemID uuid.UUID, now time.Time) *StockRecord {
	return &StockRecord{
		ID:          uuid.New(),
		WarehouseID: warehouseID,
		ItemID:      itemID,
		LastUpdated: now,
	}
}

// ItemAvailability aggregates an item's stock across warehouses.
type ItemAvailability struct {
	ItemID     uuid.UUID     `json:"item_id"`
	Quantity   int64         `json:"quantity"`
	Reserved   int64         `json:"reserved"`
	Available  int64         `json:"available"`
	Warehouses []StockRecord `json:"warehouses"`
}

// StockKey identifies a (warehouse, item) pair.
type StockKey struct {
	WarehouseID uuid.UUID
	ItemID      uuid.UUID
}

func (k StockKey) String() string {
	return k.WarehouseID.String() + "#" + k.ItemID.String()
}

// Less orders keys by warehouse then item. Multi-row operations lock rows
// in this order.
func (k StockKey) Less(o StockKey) bool {
	if c := bytes.Compare(k.WarehouseID[:], o.WarehouseID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.ItemID[:], o.ItemID[:]) < 0
}
