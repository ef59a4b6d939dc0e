package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"go.uber.org/zap"
)

const lowStockScanBatch = 500

// LowStockReporter answers which (warehouse, item) pairs have fallen below
// a safety threshold. It only reads.
type LowStockReporter struct {
	store    repository.StockStore
	settings repository.SettingsRepository
	fallback int64
	metrics  MetricsRecorder
	logger   *zap.Logger
}

func NewLowStockReporter(store repository.StockStore, settings repository.SettingsRepository, fallback int64, metrics MetricsRecorder, logger *zap.Logger) *LowStockReporter {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockReporter{
		store:    store,
		settings: settings,
		fallback: fallback,
		metrics:  metrics,
		logger:   logger,
	}
}

// ListLowStock returns every row whose available quantity is below
// threshold, lowest availability first. Availability is derived from two
// columns, so the filter runs here rather than in the store.
func (r *LowStockReporter) ListLowStock(ctx context.Context, threshold int64) ([]models.StockRecord, error) {
	if threshold < 0 {
		return nil, apperrors.ErrBadRequest.WithMessage("threshold must not be negative")
	}

	low := []models.StockRecord{}
	err := r.store.ScanStock(ctx, lowStockScanBatch, func(batch []models.StockRecord) error {
		for _, rec := range batch {
			if rec.Available() < threshold {
				low = append(low, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	sort.SliceStable(low, func(i, j int) bool { return low[i].Available() < low[j].Available() })
	_ = r.metrics.RecordValue(ctx, awspkg.MetricLowStockRows, float64(len(low)), map[string]string{"Service": "inventory-service"})
	return low, nil
}

// GetLowStockThreshold reads the configured threshold. A missing,
// malformed or unreadable setting yields fallback; the failure is logged
// and counted but never returned.
func (r *LowStockReporter) GetLowStockThreshold(ctx context.Context, fallback int64) int64 {
	if r.settings == nil {
		return r.fellBack(ctx, fallback, "unconfigured", nil)
	}

	raw, err := r.settings.GetByKey(ctx, models.SettingLowStockThreshold)
	if errors.Is(err, repository.ErrNotFound) {
		return r.fellBack(ctx, fallback, "missing", nil)
	}
	if err != nil {
		return r.fellBack(ctx, fallback, "lookup_failed", err)
	}

	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return r.fellBack(ctx, fallback, "malformed", err, zap.String("value", raw))
	}
	return v
}

// Threshold uses the reporter's configured fallback.
func (r *LowStockReporter) Threshold(ctx context.Context) int64 {
	return r.GetLowStockThreshold(ctx, r.fallback)
}

// SetLowStockThreshold persists a new positive threshold.
func (r *LowStockReporter) SetLowStockThreshold(ctx context.Context, threshold int64) error {
	if threshold <= 0 {
		return apperrors.ErrBadRequest.WithMessage("threshold must be a positive integer")
	}
	w, ok := r.settings.(repository.SettingsWriter)
	if !ok {
		return apperrors.ErrServiceUnavailable.WithMessage("settings store is read-only")
	}
	if err := w.Set(ctx, models.SettingLowStockThreshold, strconv.FormatInt(threshold, 10)); err != nil {
		return apperrors.ErrInternalServer.Wrap(err)
	}
	r.logger.Info("Low-stock threshold updated", zap.Int64("threshold", threshold))
	return nil
}

func (r *LowStockReporter) fellBack(ctx context.Context, fallback int64, reason string, err error, fields ...zap.Field) int64 {
	fields = append(fields,
		zap.String("key", models.SettingLowStockThreshold),
		zap.String("reason", reason),
		zap.Int64("fallback", fallback))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("Low-stock threshold setting unusable, using fallback", fields...)
	_ = r.metrics.RecordCount(ctx, awspkg.MetricThresholdFallback, map[string]string{"Reason": reason})
	return fallback
}
