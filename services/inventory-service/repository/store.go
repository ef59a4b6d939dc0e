package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a write lost a race and could not be retried.
	ErrConflict  = errors.New("concurrent modification")
	ErrDuplicate = errors.New("duplicate key")
)

var now = func() time.Time { return time.Now().UTC() }

// StockStore persists stock rows and the movement log. All mutations go
// through RunInTx so a row change and its log entries commit together.
type StockStore interface {
	// RunInTx runs fn in one transaction. If fn returns an error nothing
	// it wrote is visible afterwards. fn may be invoked more than once by
	// optimistic stores, so it must not have side effects outside tx.
	RunInTx(ctx context.Context, fn func(tx StockTx) error) error

	GetStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]models.StockRecord, error)
	// ScanStock visits every stock row in batches.
	ScanStock(ctx context.Context, batchSize int, fn func([]models.StockRecord) error) error
	ListLogs(ctx context.Context, filter models.LogFilter) ([]models.MovementLogEntry, error)
}

// StockTx is the transactional view of a StockStore. Rows returned by
// LockStock and LockOrCreateStock are held exclusively until the
// transaction ends. Callers locking several rows must lock them in
// models.StockKey order.
type StockTx interface {
	// LockStock returns ErrNotFound when the pair has no row.
	LockStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error)
	// LockOrCreateStock creates a zero row for the pair when none exists.
	LockOrCreateStock(ctx context.Context, key models.StockKey) (*models.StockRecord, error)
	// SaveStock writes rec, whose Version must be exactly one more than the
	// version that was locked.
	SaveStock(ctx context.Context, rec *models.StockRecord) error
	AppendLog(ctx context.Context, entry *models.MovementLogEntry) error
}

// WarehouseRepository stores warehouse master data.
type WarehouseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	FindByCode(ctx context.Context, code string) (*models.Warehouse, error)
	ListActive(ctx context.Context) ([]models.Warehouse, error)
	Create(ctx context.Context, w *models.Warehouse) error
	Update(ctx context.Context, w *models.Warehouse) error
}

// SettingsRepository is a key/value configuration lookup. A missing key
// returns ErrNotFound.
type SettingsRepository interface {
	GetByKey(ctx context.Context, key string) (string, error)
}

// SettingsWriter is implemented by settings repositories that accept
// updates.
type SettingsWriter interface {
	Set(ctx context.Context, key, value string) error
}
