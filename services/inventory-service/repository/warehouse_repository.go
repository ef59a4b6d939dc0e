package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"gorm.io/gorm"
)

// GormWarehouseRepository implements WarehouseRepository using GORM.
type GormWarehouseRepository struct {
	db *gorm.DB
}

func NewGormWarehouseRepository(db *gorm.DB) WarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

func (r *GormWarehouseRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	var w models.Warehouse
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find warehouse %s: %w", id, err)
	}
	return &w, nil
}

func (r *GormWarehouseRepository) FindByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	var w models.Warehouse
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find warehouse by code %q: %w", code, err)
	}
	return &w, nil
}

func (r *GormWarehouseRepository) ListActive(ctx context.Context) ([]models.Warehouse, error) {
	var ws []models.Warehouse
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name").
		Find(&ws).Error; err != nil {
		return nil, fmt.Errorf("list active warehouses: %w", err)
	}
	return ws, nil
}

func (r *GormWarehouseRepository) Create(ctx context.Context, w *models.Warehouse) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create warehouse: %w", err)
	}
	return nil
}

func (r *GormWarehouseRepository) Update(ctx context.Context, w *models.Warehouse) error {
	res := r.db.WithContext(ctx).
		Model(&models.Warehouse{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"name":      w.Name,
			"code":      w.Code,
			"address":   w.Address,
			"phone":     w.Phone,
			"is_active": w.IsActive,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("update warehouse %s: %w", w.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const warehousesTable = "warehouses"

type warehouseRow struct {
	ID        string
	Code      string
	Active    bool
	Warehouse models.Warehouse
}

func newWarehouseRow(w models.Warehouse) *warehouseRow {
	return &warehouseRow{ID: w.ID.String(), Code: w.Code, Active: w.IsActive, Warehouse: w}
}

var warehouseSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		warehousesTable: {
			Name: warehousesTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":     {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				"code":   {Name: "code", Unique: true, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "Code"}},
				"active": {Name: "active", Indexer: &memdb.BoolFieldIndex{Field: "Active"}},
			},
		},
	},
}

// MemoryWarehouseRepository is an in-process WarehouseRepository for
// local runs and tests. memdb does not reject duplicates on a unique
// index, so writers check the code index inside their transaction.
type MemoryWarehouseRepository struct {
	db *memdb.MemDB
}

func NewMemoryWarehouseRepository(seed ...models.Warehouse) *MemoryWarehouseRepository {
	r := &MemoryWarehouseRepository{db: mustMemDB(warehouseSchema)}
	txn := r.db.Txn(true)
	defer txn.Abort()
	for _, w := range seed {
		if err := txn.Insert(warehousesTable, newWarehouseRow(w)); err != nil {
			panic(fmt.Sprintf("seed warehouse %s: %v", w.ID, err))
		}
	}
	txn.Commit()
	return r
}

func findWarehouse(txn *memdb.Txn, index, value string) (*models.Warehouse, error) {
	raw, err := txn.First(warehousesTable, index, value)
	if err != nil {
		return nil, fmt.Errorf("memdb warehouse by %s: %w", index, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	w := raw.(*warehouseRow).Warehouse
	return &w, nil
}

func (r *MemoryWarehouseRepository) FindByID(_ context.Context, id uuid.UUID) (*models.Warehouse, error) {
	return findWarehouse(r.db.Txn(false), "id", id.String())
}

func (r *MemoryWarehouseRepository) FindByCode(_ context.Context, code string) (*models.Warehouse, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return findWarehouse(r.db.Txn(false), "code", code)
}

func (r *MemoryWarehouseRepository) ListActive(_ context.Context) ([]models.Warehouse, error) {
	it, err := r.db.Txn(false).Get(warehousesTable, "active", true)
	if err != nil {
		return nil, fmt.Errorf("memdb active warehouses: %w", err)
	}
	var out []models.Warehouse
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*warehouseRow).Warehouse)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// codeTaken reports whether code belongs to a warehouse other than id.
func codeTaken(txn *memdb.Txn, code string, id uuid.UUID) (bool, error) {
	if code == "" {
		return false, nil
	}
	other, err := findWarehouse(txn, "code", code)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return other.ID != id, nil
}

func (r *MemoryWarehouseRepository) Create(_ context.Context, w *models.Warehouse) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if taken, err := codeTaken(txn, w.Code, w.ID); err != nil {
		return err
	} else if taken {
		return ErrDuplicate
	}
	if _, err := findWarehouse(txn, "id", w.ID.String()); err == nil {
		return ErrDuplicate
	}

	if w.CreatedAt.IsZero() {
		w.CreatedAt = now()
	}
	w.UpdatedAt = w.CreatedAt
	if err := txn.Insert(warehousesTable, newWarehouseRow(*w)); err != nil {
		return fmt.Errorf("memdb create warehouse: %w", err)
	}
	txn.Commit()
	return nil
}

func (r *MemoryWarehouseRepository) Update(_ context.Context, w *models.Warehouse) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := findWarehouse(txn, "id", w.ID.String())
	if err != nil {
		return err
	}
	if taken, err := codeTaken(txn, w.Code, w.ID); err != nil {
		return err
	} else if taken {
		return ErrDuplicate
	}

	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = now()
	if err := txn.Insert(warehousesTable, newWarehouseRow(*w)); err != nil {
		return fmt.Errorf("memdb update warehouse %s: %w", w.ID, err)
	}
	txn.Commit()
	return nil
}

// SetActive flips a warehouse's active flag in place.
func (r *MemoryWarehouseRepository) SetActive(id uuid.UUID, active bool) {
	txn := r.db.Txn(true)
	defer txn.Abort()
	w, err := findWarehouse(txn, "id", id.String())
	if err != nil {
		return
	}
	w.IsActive = active
	if err := txn.Insert(warehousesTable, newWarehouseRow(*w)); err != nil {
		return
	}
	txn.Commit()
}
