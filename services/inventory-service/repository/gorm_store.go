package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockStore keeps the ledger in Postgres. Each transaction holds the
// touched stock rows with SELECT ... FOR UPDATE, which serializes
// concurrent mutations of the same pair.
type GormStockStore struct {
	db *gorm.DB
}

func NewGormStockStore(db *gorm.DB) *GormStockStore {
	return &GormStockStore{db: db}
}

func (s *GormStockStore) RunInTx(ctx context.Context, fn func(tx StockTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStockTx{db: tx})
	})
}

func (s *GormStockStore) GetStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	var recs []models.StockRecord
	if err := s.db.WithContext(ctx).
		Where("warehouse_id = ? AND item_id = ?", key.WarehouseID, key.ItemID).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get stock %s: %w", key, err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (s *GormStockStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.StockRecord, error) {
	var recs []models.StockRecord
	if err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("warehouse_id").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list stock for item %s: %w", itemID, err)
	}
	return recs, nil
}

func (s *GormStockStore) ScanStock(ctx context.Context, batchSize int, fn func([]models.StockRecord) error) error {
	var batch []models.StockRecord
	err := s.db.WithContext(ctx).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
	if err != nil {
		return fmt.Errorf("scan stock: %w", err)
	}
	return nil
}

func (s *GormStockStore) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.MovementLogEntry, error) {
	filter = filter.Normalize()

	q := s.db.WithContext(ctx).Model(&models.MovementLogEntry{})
	if filter.WarehouseID != nil {
		q = q.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}

	if filter.PinsPair() {
		q = q.Order("version DESC").Order("created_at DESC")
	} else {
		q = q.Order("created_at DESC").Order("version DESC")
	}

	var entries []models.MovementLogEntry
	if err := q.Limit(filter.Limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list movement logs: %w", err)
	}
	return entries, nil
}

type gormStockTx struct {
	db *gorm.DB
}

func (t *gormStockTx) LockStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	var recs []models.StockRecord
	if err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("warehouse_id = ? AND item_id = ?", key.WarehouseID, key.ItemID).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("lock stock %s: %w", key, err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// LockOrCreateStock inserts a zero row, ignoring the unique-pair conflict
// when another transaction got there first, and then locks whichever row
// won.
func (t *gormStockTx) LockOrCreateStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error) {
	rec := models.NewStockRecord(key.WarehouseID, key.ItemID, t.db.NowFunc())
	if err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "warehouse_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).
		Create(rec).Error; err != nil {
		return nil, fmt.Errorf("create stock %s: %w", key, err)
	}
	return t.LockStock(ctx, key)
}

func (t *gormStockTx) SaveStock(ctx context.Context, rec *models.StockRecord) error {
	res := t.db.WithContext(ctx).
		Model(&models.StockRecord{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version-1).
		Updates(map[string]interface{}{
			"quantity":          rec.Quantity,
			"reserved_quantity": rec.ReservedQuantity,
			"version":           rec.Version,
			"last_updated":      rec.LastUpdated,
		})
	if res.Error != nil {
		return fmt.Errorf("save stock %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (t *gormStockTx) AppendLog(ctx context.Context, entry *models.MovementLogEntry) error {
	if err := t.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("append movement log: %w", err)
	}
	return nil
}
