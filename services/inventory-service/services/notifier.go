package services

import (
	"context"
	"time"

	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/events"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"go.uber.org/zap"
)

// ThresholdSource yields the current low-stock threshold.
type ThresholdSource interface {
	Threshold(ctx context.Context) int64
}

// Notifier publishes events for committed mutations. It runs after the
// store transaction and never fails the caller: a publish error is logged
// and counted, the ledger change stands.
type Notifier struct {
	publisher  events.Publisher
	thresholds ThresholdSource
	metrics    MetricsRecorder
	logger     *zap.Logger
	timeout    time.Duration
}

func NewNotifier(publisher events.Publisher, thresholds ThresholdSource, metrics MetricsRecorder, logger *zap.Logger) *Notifier {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		publisher:  publisher,
		thresholds: thresholds,
		metrics:    metrics,
		logger:     logger,
		timeout:    5 * time.Second,
	}
}

// Committed publishes one stock_moved event per entry and a low_stock event
// for every row in drained whose available quantity is now below the
// threshold.
func (n *Notifier) Committed(ctx context.Context, entries []models.MovementLogEntry, drained ...*models.StockRecord) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	for i := range entries {
		e := &entries[i]
		key := models.StockKey{WarehouseID: e.WarehouseID, ItemID: e.ItemID}.String()
		n.publish(ctx, models.EventStockMoved, key, models.NewStockMovedEvent(e))
	}

	if len(drained) == 0 || n.thresholds == nil {
		return
	}
	threshold := n.thresholds.Threshold(ctx)
	for _, rec := range drained {
		if rec == nil || rec.Available() >= threshold {
			continue
		}
		key := models.StockKey{WarehouseID: rec.WarehouseID, ItemID: rec.ItemID}
		n.logger.Info("Stock below low-stock threshold",
			zap.String("warehouse_id", rec.WarehouseID.String()),
			zap.String("item_id", rec.ItemID.String()),
			zap.Int64("available", rec.Available()),
			zap.Int64("threshold", threshold))
		_ = n.metrics.RecordCount(ctx, awspkg.MetricInventoryLow, map[string]string{"Service": "inventory-service"})
		n.publish(ctx, models.EventLowStock, key.String(), models.LowStockEvent{
			EventType:   models.EventLowStock,
			WarehouseID: rec.WarehouseID,
			ItemID:      rec.ItemID,
			Quantity:    rec.Quantity,
			Reserved:    rec.ReservedQuantity,
			Available:   rec.Available(),
			Threshold:   threshold,
			Timestamp:   now(),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, eventType, key string, payload any) {
	if err := n.publisher.Publish(ctx, eventType, key, payload); err != nil {
		n.logger.Error("Failed to publish inventory event (non-fatal)",
			zap.String("event_type", eventType),
			zap.String("stock_key", key),
			zap.Error(err))
		_ = n.metrics.RecordCount(ctx, awspkg.MetricEventPublishFailures, map[string]string{"EventType": eventType})
	}
}
