package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/common/logger"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"go.uber.org/zap"
)

// TransferOrchestrator moves stock between warehouses. The stock-out at
// the source, the stock-in at the destination and the correlating
// transfer entry commit in a single store transaction: either all three
// log entries exist afterwards or none do.
type TransferOrchestrator struct {
	store      repository.StockStore
	warehouses WarehouseDirectory
	notifier   *Notifier
	metrics    MetricsRecorder
	logger     *zap.Logger
}

func NewTransferOrchestrator(store repository.StockStore, warehouses WarehouseDirectory, notifier *Notifier, metrics MetricsRecorder, logger *zap.Logger) *TransferOrchestrator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferOrchestrator{
		store:      store,
		warehouses: warehouses,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

func (o *TransferOrchestrator) Transfer(ctx context.Context, req *models.TransferRequest) (*models.TransferResult, error) {
	if err := o.validate(req); err != nil {
		return nil, o.reject(ctx, req, err)
	}
	return o.commit(ctx, req)
}

func (o *TransferOrchestrator) validate(req *models.TransferRequest) error {
	if err := requirePositive(req.Quantity); err != nil {
		return err
	}
	if err := requireItem(req.ItemID); err != nil {
		return err
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return apperrors.ErrBadRequest.WithMessage("source and destination warehouse must differ")
	}
	return nil
}

func (o *TransferOrchestrator) commit(ctx context.Context, req *models.TransferRequest) (*models.TransferResult, error) {
	from, err := requireActive(ctx, o.warehouses, req.FromWarehouseID)
	if err != nil {
		return nil, o.reject(ctx, req, err)
	}
	to, err := requireActive(ctx, o.warehouses, req.ToWarehouseID)
	if err != nil {
		return nil, o.reject(ctx, req, err)
	}

	srcKey := models.StockKey{WarehouseID: from.ID, ItemID: req.ItemID}
	dstKey := models.StockKey{WarehouseID: to.ID, ItemID: req.ItemID}

	var src, dst *models.StockRecord
	var entries []models.MovementLogEntry
	err = o.store.RunInTx(ctx, func(tx repository.StockTx) error {
		entries = entries[:0]

		lockSrc := func() (err error) {
			src, err = lockForOut(ctx, tx, srcKey, req.Quantity, apperrors.ErrInsufficientStockForTransfer)
			return err
		}
		lockDst := func() (err error) {
			dst, err = lockForIn(ctx, tx, dstKey, req.Quantity)
			return err
		}
		first, second := lockSrc, lockDst
		if dstKey.Less(srcKey) {
			first, second = lockDst, lockSrc
		}
		if err := first(); err != nil {
			return err
		}
		if err := second(); err != nil {
			return err
		}

		out, err := applyMovement(ctx, tx, src, models.MovementOut, src.Quantity-req.Quantity, movementMeta{
			Note:    strPtr(fmt.Sprintf("Transfer to warehouse %s", to.Code)),
			ActorID: req.ActorID,
		})
		if err != nil {
			return err
		}
		in, err := applyMovement(ctx, tx, dst, models.MovementIn, dst.Quantity+req.Quantity, movementMeta{
			Note:    strPtr(fmt.Sprintf("Transfer from warehouse %s", from.Code)),
			ActorID: req.ActorID,
		})
		if err != nil {
			return err
		}

		note := req.Note
		if note == nil {
			note = strPtr(fmt.Sprintf("Transfer of %d to warehouse %s", req.Quantity, to.Code))
		}
		summary := &models.MovementLogEntry{
			ID:             uuid.New(),
			WarehouseID:    src.WarehouseID,
			ItemID:         src.ItemID,
			MovementType:   models.MovementTransfer,
			QuantityDelta:  out.QuantityDelta,
			QuantityBefore: out.QuantityBefore,
			QuantityAfter:  out.QuantityAfter,
			Note:           note,
			ActorID:        req.ActorID,
			Version:        src.Version,
			CreatedAt:      out.CreatedAt,
		}
		if err := tx.AppendLog(ctx, summary); err != nil {
			return err
		}

		entries = append(entries, *out, *in, *summary)
		return nil
	})
	if err != nil {
		return nil, o.reject(ctx, req, translateStoreErr(err))
	}

	logger.For(ctx, o.logger).Info("Stock transferred",
		zap.String("from_warehouse", from.Code),
		zap.String("to_warehouse", to.Code),
		zap.String("item_id", req.ItemID.String()),
		zap.Int64("quantity", req.Quantity),
		zap.Int64("source_after", src.Quantity),
		zap.Int64("destination_after", dst.Quantity))
	_ = o.metrics.RecordCount(ctx, awspkg.MetricStockTransferred, map[string]string{"Service": "inventory-service"})
	o.notifier.Committed(ctx, entries, src)

	return &models.TransferResult{
		Success: true,
		Source:  src,
		Target:  dst,
		Entries: entries,
	}, nil
}

func (o *TransferOrchestrator) reject(ctx context.Context, req *models.TransferRequest, err error) error {
	logger.For(ctx, o.logger).Warn("Stock transfer rejected",
		zap.String("from_warehouse_id", req.FromWarehouseID.String()),
		zap.String("to_warehouse_id", req.ToWarehouseID.String()),
		zap.String("item_id", req.ItemID.String()),
		zap.Int64("quantity", req.Quantity),
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Error(err))
	_ = o.metrics.RecordCount(ctx, awspkg.MetricStockRejected, map[string]string{
		"Type": string(models.MovementTransfer),
		"Kind": string(apperrors.KindOf(err)),
	})
	return err
}
