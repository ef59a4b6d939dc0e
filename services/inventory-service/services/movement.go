package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
)

var now = func() time.Time { return time.Now().UTC() }

// WarehouseDirectory resolves warehouses for the active check. A missing
// warehouse is reported as an error matching apperrors.ErrNotFound.
type WarehouseDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

type nopMetrics struct{}

func (nopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }

func (nopMetrics) RecordValue(context.Context, string, float64, map[string]string) error {
	return nil
}

type movementMeta struct {
	Note    *string
	ActorID *string
}

// requireActive loads a warehouse and rejects it unless it exists and is
// active.
func requireActive(ctx context.Context, dir WarehouseDirectory, id uuid.UUID) (*models.Warehouse, error) {
	w, err := dir.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrWarehouseInactiveOrNotFound.WithMessage("warehouse %s does not exist", id)
		}
		return nil, fmt.Errorf("look up warehouse %s: %w", id, err)
	}
	if !w.IsActive {
		return nil, apperrors.ErrWarehouseInactiveOrNotFound.WithMessage("warehouse %s (%s) is inactive", w.Code, id)
	}
	return w, nil
}

func requirePositive(quantity int64) error {
	if quantity <= 0 {
		return apperrors.ErrInvalidQuantity.WithMessage("quantity must be a positive integer, got %d", quantity)
	}
	return nil
}

func requireItem(itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return apperrors.ErrBadRequest.WithMessage("item_id is required")
	}
	return nil
}

// lockForIn locks the pair for a stock-in, creating it on first use.
func lockForIn(ctx context.Context, tx repository.StockTx, key models.StockKey, quantity int64) (*models.StockRecord, error) {
	rec, err := tx.LockOrCreateStock(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Quantity > math.MaxInt64-quantity {
		return nil, apperrors.ErrInvalidQuantity.WithMessage("quantity %d would overflow the on-hand count", quantity)
	}
	return rec, nil
}

// lockForOut locks the pair and checks that quantity is available. A
// missing row has nothing available. insufficient is returned, with
// detail, when the check fails.
func lockForOut(ctx context.Context, tx repository.StockTx, key models.StockKey, quantity int64, insufficient *apperrors.Error) (*models.StockRecord, error) {
	rec, err := tx.LockStock(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, insufficient.WithMessage("requested %d, available 0", quantity)
	}
	if err != nil {
		return nil, err
	}
	if rec.Available() < quantity {
		return nil, insufficient.WithMessage("requested %d, available %d", quantity, rec.Available())
	}
	return rec, nil
}

// applyMovement moves rec to newQuantity, bumps its version, saves it and
// appends the matching log entry. rec is updated in place.
func applyMovement(ctx context.Context, tx repository.StockTx, rec *models.StockRecord, typ models.MovementType, newQuantity int64, meta movementMeta) (*models.MovementLogEntry, error) {
	t := now()
	before := rec.Quantity

	rec.Quantity = newQuantity
	rec.Version++
	rec.LastUpdated = t
	if err := tx.SaveStock(ctx, rec); err != nil {
		return nil, err
	}

	entry := &models.MovementLogEntry{
		ID:             uuid.New(),
		WarehouseID:    rec.WarehouseID,
		ItemID:         rec.ItemID,
		MovementType:   typ,
		QuantityDelta:  newQuantity - before,
		QuantityBefore: before,
		QuantityAfter:  newQuantity,
		Note:           meta.Note,
		ActorID:        meta.ActorID,
		Version:        rec.Version,
		CreatedAt:      t,
	}
	if err := tx.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// updateReservation saves a reserved-quantity change. Reservations move no
// on-hand stock, so no log entry is written.
func updateReservation(ctx context.Context, tx repository.StockTx, rec *models.StockRecord, reserved int64) error {
	rec.ReservedQuantity = reserved
	rec.Version++
	rec.LastUpdated = now()
	return tx.SaveStock(ctx, rec)
}

func strPtr(s string) *string { return &s }
