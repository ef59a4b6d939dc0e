package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/common/logger"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"go.uber.org/zap"
)

// StockLedger is the only writer of stock quantities. Every accepted
// mutation runs in one store transaction together with its movement log
// entry, so a row and its history never disagree.
type StockLedger struct {
	store      repository.StockStore
	warehouses WarehouseDirectory
	notifier   *Notifier
	metrics    MetricsRecorder
	logger     *zap.Logger
}

func NewStockLedger(store repository.StockStore, warehouses WarehouseDirectory, notifier *Notifier, metrics MetricsRecorder, logger *zap.Logger) *StockLedger {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockLedger{
		store:      store,
		warehouses: warehouses,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// StockIn receives goods, creating the stock row on first use.
func (l *StockLedger) StockIn(ctx context.Context, req *models.StockInRequest) (*models.StockRecord, error) {
	if err := requirePositive(req.Quantity); err != nil {
		return nil, l.rejected(ctx, models.MovementIn, req.WarehouseID, req.ItemID, err)
	}
	if err := requireItem(req.ItemID); err != nil {
		return nil, err
	}
	if _, err := requireActive(ctx, l.warehouses, req.WarehouseID); err != nil {
		return nil, l.rejected(ctx, models.MovementIn, req.WarehouseID, req.ItemID, err)
	}

	key := models.StockKey{WarehouseID: req.WarehouseID, ItemID: req.ItemID}
	meta := movementMeta{Note: req.Note, ActorID: req.ActorID}

	var rec *models.StockRecord
	var entry *models.MovementLogEntry
	err := l.store.RunInTx(ctx, func(tx repository.StockTx) error {
		r, err := lockForIn(ctx, tx, key, req.Quantity)
		if err != nil {
			return err
		}
		e, err := applyMovement(ctx, tx, r, models.MovementIn, r.Quantity+req.Quantity, meta)
		if err != nil {
			return err
		}
		rec, entry = r, e
		return nil
	})
	if err != nil {
		return nil, l.rejected(ctx, models.MovementIn, req.WarehouseID, req.ItemID, err)
	}

	l.accepted(ctx, entry)
	l.notifier.Committed(ctx, []models.MovementLogEntry{*entry})
	return rec, nil
}

// StockOut removes goods. Only the available quantity can leave, so
// reserved stock is never oversold.
func (l *StockLedger) StockOut(ctx context.Context, req *models.StockOutRequest) (*models.StockRecord, error) {
	if err := requirePositive(req.Quantity); err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}
	if err := requireItem(req.ItemID); err != nil {
		return nil, err
	}
	if _, err := requireActive(ctx, l.warehouses, req.WarehouseID); err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}

	key := models.StockKey{WarehouseID: req.WarehouseID, ItemID: req.ItemID}
	meta := movementMeta{Note: req.Note, ActorID: req.ActorID}

	var rec *models.StockRecord
	var entry *models.MovementLogEntry
	err := l.store.RunInTx(ctx, func(tx repository.StockTx) error {
		r, err := lockForOut(ctx, tx, key, req.Quantity, apperrors.ErrInsufficientStock)
		if err != nil {
			return err
		}
		e, err := applyMovement(ctx, tx, r, models.MovementOut, r.Quantity-req.Quantity, meta)
		if err != nil {
			return err
		}
		rec, entry = r, e
		return nil
	})
	if err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}

	l.accepted(ctx, entry)
	l.notifier.Committed(ctx, []models.MovementLogEntry{*entry}, rec)
	return rec, nil
}

// Adjust sets the on-hand quantity to an absolute value after a stock-take.
// It never creates a row, and cannot go below what is reserved.
func (l *StockLedger) Adjust(ctx context.Context, req *models.AdjustRequest) (*models.StockRecord, error) {
	if req.NewQuantity == nil || *req.NewQuantity < 0 {
		err := apperrors.ErrInvalidQuantity.WithMessage("new_quantity must be zero or a positive integer")
		return nil, l.rejected(ctx, models.MovementAdjustment, req.WarehouseID, req.ItemID, err)
	}
	newQty := *req.NewQuantity
	if err := requireItem(req.ItemID); err != nil {
		return nil, err
	}
	if _, err := requireActive(ctx, l.warehouses, req.WarehouseID); err != nil {
		return nil, l.rejected(ctx, models.MovementAdjustment, req.WarehouseID, req.ItemID, err)
	}

	key := models.StockKey{WarehouseID: req.WarehouseID, ItemID: req.ItemID}
	meta := movementMeta{Note: req.Note, ActorID: req.ActorID}

	var rec *models.StockRecord
	var entry *models.MovementLogEntry
	err := l.store.RunInTx(ctx, func(tx repository.StockTx) error {
		r, err := tx.LockStock(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrNotFound.WithMessage("no stock record for item %s at warehouse %s", req.ItemID, req.WarehouseID)
		}
		if err != nil {
			return err
		}
		if newQty < r.ReservedQuantity {
			return apperrors.ErrInvalidQuantity.WithMessage("new_quantity %d is below the reserved quantity %d", newQty, r.ReservedQuantity)
		}
		e, err := applyMovement(ctx, tx, r, models.MovementAdjustment, newQty, meta)
		if err != nil {
			return err
		}
		rec, entry = r, e
		return nil
	})
	if err != nil {
		return nil, l.rejected(ctx, models.MovementAdjustment, req.WarehouseID, req.ItemID, err)
	}

	l.accepted(ctx, entry)
	var drained []*models.StockRecord
	if entry.QuantityDelta < 0 {
		drained = append(drained, rec)
	}
	l.notifier.Committed(ctx, []models.MovementLogEntry{*entry}, drained...)
	return rec, nil
}

// Reserve earmarks available stock against an order.
func (l *StockLedger) Reserve(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error) {
	rec, err := l.changeReservation(ctx, req, "reserve", func(r *models.StockRecord) error {
		if r.Available() < req.Quantity {
			return apperrors.ErrInsufficientStock.WithMessage("requested %d, available %d", req.Quantity, r.Available())
		}
		return nil
	}, func(r *models.StockRecord) int64 { return r.ReservedQuantity + req.Quantity })
	if err != nil {
		return nil, err
	}
	l.notifier.Committed(ctx, nil, rec)
	return rec, nil
}

// Release returns reserved stock to available, e.g. when an order is
// cancelled.
func (l *StockLedger) Release(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error) {
	return l.changeReservation(ctx, req, "release", func(r *models.StockRecord) error {
		if r.ReservedQuantity < req.Quantity {
			return apperrors.ErrInvalidQuantity.WithMessage("cannot release %d, only %d reserved", req.Quantity, r.ReservedQuantity)
		}
		return nil
	}, func(r *models.StockRecord) int64 { return r.ReservedQuantity - req.Quantity })
}

func (l *StockLedger) changeReservation(ctx context.Context, req *models.ReservationRequest, op string, check func(*models.StockRecord) error, reserved func(*models.StockRecord) int64) (*models.StockRecord, error) {
	if err := requirePositive(req.Quantity); err != nil {
		return nil, err
	}
	if err := requireItem(req.ItemID); err != nil {
		return nil, err
	}
	if _, err := requireActive(ctx, l.warehouses, req.WarehouseID); err != nil {
		return nil, err
	}

	key := models.StockKey{WarehouseID: req.WarehouseID, ItemID: req.ItemID}
	var rec *models.StockRecord
	err := l.store.RunInTx(ctx, func(tx repository.StockTx) error {
		r, err := tx.LockStock(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrInsufficientStock.WithMessage("no stock for item %s at warehouse %s", req.ItemID, req.WarehouseID)
		}
		if err != nil {
			return err
		}
		if err := check(r); err != nil {
			return err
		}
		if err := updateReservation(ctx, tx, r, reserved(r)); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		logger.For(ctx, l.logger).Warn("Reservation change rejected",
			zap.String("op", op),
			zap.String("warehouse_id", req.WarehouseID.String()),
			zap.String("item_id", req.ItemID.String()),
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, translateStoreErr(err)
	}

	logger.For(ctx, l.logger).Info("Reservation changed",
		zap.String("op", op),
		zap.String("warehouse_id", req.WarehouseID.String()),
		zap.String("item_id", req.ItemID.String()),
		zap.String("order_id", req.OrderID),
		zap.Int64("quantity", req.Quantity),
		zap.Int64("reserved", rec.ReservedQuantity),
		zap.Int64("available", rec.Available()))
	return rec, nil
}

// ConfirmReservation ships reserved stock: on-hand and reserved both drop
// by quantity and an out movement is logged.
func (l *StockLedger) ConfirmReservation(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error) {
	if err := requirePositive(req.Quantity); err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}
	if err := requireItem(req.ItemID); err != nil {
		return nil, err
	}
	if _, err := requireActive(ctx, l.warehouses, req.WarehouseID); err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}

	key := models.StockKey{WarehouseID: req.WarehouseID, ItemID: req.ItemID}
	meta := movementMeta{ActorID: req.ActorID}
	if req.OrderID != "" {
		meta.Note = strPtr(fmt.Sprintf("Order %s confirmed", req.OrderID))
	}

	var rec *models.StockRecord
	var entry *models.MovementLogEntry
	err := l.store.RunInTx(ctx, func(tx repository.StockTx) error {
		r, err := tx.LockStock(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrInvalidQuantity.WithMessage("nothing reserved for item %s at warehouse %s", req.ItemID, req.WarehouseID)
		}
		if err != nil {
			return err
		}
		if r.ReservedQuantity < req.Quantity {
			return apperrors.ErrInvalidQuantity.WithMessage("cannot confirm %d, only %d reserved", req.Quantity, r.ReservedQuantity)
		}
		r.ReservedQuantity -= req.Quantity
		e, err := applyMovement(ctx, tx, r, models.MovementOut, r.Quantity-req.Quantity, meta)
		if err != nil {
			return err
		}
		rec, entry = r, e
		return nil
	})
	if err != nil {
		return nil, l.rejected(ctx, models.MovementOut, req.WarehouseID, req.ItemID, err)
	}

	l.accepted(ctx, entry)
	l.notifier.Committed(ctx, []models.MovementLogEntry{*entry})
	return rec, nil
}

// GetByWarehouseAndItem returns the pair's row, or an ErrNotFound error.
func (l *StockLedger) GetByWarehouseAndItem(ctx context.Context, warehouseID, itemID uuid.UUID) (*models.StockRecord, error) {
	rec, err := l.store.GetStock(ctx, models.StockKey{WarehouseID: warehouseID, ItemID: itemID})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("no stock record for item %s at warehouse %s", itemID, warehouseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock: %w", err)
	}
	return rec, nil
}

// GetByItem returns the item's rows across all warehouses.
func (l *StockLedger) GetByItem(ctx context.Context, itemID uuid.UUID) ([]models.StockRecord, error) {
	recs, err := l.store.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock for item: %w", err)
	}
	if recs == nil {
		recs = []models.StockRecord{}
	}
	return recs, nil
}

// GetItemAvailability sums an item's rows across warehouses.
func (l *StockLedger) GetItemAvailability(ctx context.Context, itemID uuid.UUID) (*models.ItemAvailability, error) {
	recs, err := l.GetByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	agg := &models.ItemAvailability{ItemID: itemID, Warehouses: recs}
	for _, r := range recs {
		agg.Quantity += r.Quantity
		agg.Reserved += r.ReservedQuantity
		agg.Available += r.Available()
	}
	return agg, nil
}

// GetLogs returns movement log entries, newest first.
func (l *StockLedger) GetLogs(ctx context.Context, filter models.LogFilter) ([]models.MovementLogEntry, error) {
	entries, err := l.store.ListLogs(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movement logs: %w", err)
	}
	if entries == nil {
		entries = []models.MovementLogEntry{}
	}
	return entries, nil
}

func (l *StockLedger) accepted(ctx context.Context, e *models.MovementLogEntry) {
	logger.For(ctx, l.logger).Info("Stock movement recorded",
		zap.String("warehouse_id", e.WarehouseID.String()),
		zap.String("item_id", e.ItemID.String()),
		zap.String("type", string(e.MovementType)),
		zap.Int64("delta", e.QuantityDelta),
		zap.Int64("before", e.QuantityBefore),
		zap.Int64("after", e.QuantityAfter),
		zap.Int64("version", e.Version))
	_ = l.metrics.RecordCount(ctx, movementMetric(e.MovementType), map[string]string{"Service": "inventory-service"})
}

func (l *StockLedger) rejected(ctx context.Context, typ models.MovementType, warehouseID, itemID uuid.UUID, err error) error {
	err = translateStoreErr(err)
	logger.For(ctx, l.logger).Warn("Stock movement rejected",
		zap.String("warehouse_id", warehouseID.String()),
		zap.String("item_id", itemID.String()),
		zap.String("type", string(typ)),
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Error(err))
	_ = l.metrics.RecordCount(ctx, awspkg.MetricStockRejected, map[string]string{
		"Type": string(typ),
		"Kind": string(apperrors.KindOf(err)),
	})
	return err
}

// translateStoreErr maps storage failures onto the service taxonomy.
// Business errors pass through untouched.
func translateStoreErr(err error) error {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrConflict):
		return apperrors.ErrServiceUnavailable.WithMessage("stock row is busy, retry the request").Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrServiceUnavailable.WithMessage("request cancelled before commit").Wrap(err)
	default:
		return apperrors.ErrInternalServer.Wrap(err)
	}
}

func movementMetric(t models.MovementType) string {
	switch t {
	case models.MovementIn:
		return awspkg.MetricStockIn
	case models.MovementOut:
		return awspkg.MetricStockOut
	case models.MovementAdjustment:
		return awspkg.MetricStockAdjusted
	default:
		return awspkg.MetricStockTransferred
	}
}
