package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"go.uber.org/zap"
)

const (
	CommandIn       = "in"
	CommandOut      = "out"
	CommandAdjust   = "adjust"
	CommandTransfer = "transfer"
	CommandReserve  = "reserve"
	CommandRelease  = "release"
	CommandConfirm  = "confirm"
)

// Ledger is the subset of services.StockLedger the consumer drives.
type Ledger interface {
	StockIn(ctx context.Context, req *models.StockInRequest) (*models.StockRecord, error)
	StockOut(ctx context.Context, req *models.StockOutRequest) (*models.StockRecord, error)
	Adjust(ctx context.Context, req *models.AdjustRequest) (*models.StockRecord, error)
	Reserve(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error)
	Release(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error)
	ConfirmReservation(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error)
}

type Transferrer interface {
	Transfer(ctx context.Context, req *models.TransferRequest) (*models.TransferResult, error)
}

type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// StockCommandConsumer applies stock commands received from an SQS queue.
// Each command carries an operation id; a command whose id was already
// claimed is skipped, which makes redelivery safe.
type StockCommandConsumer struct {
	sqs       *awspkg.SQSConsumer
	ledger    Ledger
	transfers Transferrer
	claims    IdempotencyStore
	validate  *validator.Validate
	metrics   MetricsRecorder
	logger    *zap.Logger
}

func NewStockCommandConsumer(sqs *awspkg.SQSConsumer, ledger Ledger, transfers Transferrer, claims IdempotencyStore, metrics MetricsRecorder, logger *zap.Logger) *StockCommandConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockCommandConsumer{
		sqs:       sqs,
		ledger:    ledger,
		transfers: transfers,
		claims:    claims,
		validate:  validator.New(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Start polls the queue until ctx is cancelled.
func (c *StockCommandConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting stock command consumer")
	if err := c.sqs.StartPolling(ctx, c.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Stock command consumer stopped", zap.Error(err))
	}
}

// HandleMessage processes one queue message. A nil return acknowledges
// the message; an error leaves it for redelivery.
func (c *StockCommandConsumer) HandleMessage(ctx context.Context, body string) error {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var cmd models.StockCommand
	if err := json.Unmarshal([]byte(body), &cmd); err != nil {
		c.logger.Warn("Dropping malformed stock command", zap.Error(err), zap.String("payload", body))
		return nil
	}
	if err := c.validate.Struct(&cmd); err != nil {
		c.logger.Warn("Dropping invalid stock command",
			zap.String("operation_id", cmd.OperationID),
			zap.Error(err))
		return nil
	}

	log := c.logger.With(
		zap.String("operation_id", cmd.OperationID),
		zap.String("type", cmd.Type),
		zap.String("warehouse_id", cmd.WarehouseID.String()),
		zap.String("item_id", cmd.ItemID.String()))

	fresh, err := c.claims.Claim(ctx, cmd.OperationID)
	if err != nil {
		return fmt.Errorf("claim operation %s: %w", cmd.OperationID, err)
	}
	if !fresh {
		log.Info("Skipping already processed stock command")
		c.count(ctx, awspkg.MetricCommandsDuplicate, cmd.Type)
		return nil
	}

	if err := c.dispatch(ctx, &cmd); err != nil {
		if final(err) {
			log.Warn("Stock command rejected", zap.String("kind", string(apperrors.KindOf(err))), zap.Error(err))
			c.count(ctx, awspkg.MetricCommandsProcessed, cmd.Type)
			return nil
		}
		if rerr := c.claims.Release(context.WithoutCancel(ctx), cmd.OperationID); rerr != nil {
			log.Error("Failed to release operation id", zap.Error(rerr))
		}
		return fmt.Errorf("apply stock command %s: %w", cmd.OperationID, err)
	}

	log.Info("Stock command applied")
	c.count(ctx, awspkg.MetricCommandsProcessed, cmd.Type)
	return nil
}

func (c *StockCommandConsumer) dispatch(ctx context.Context, cmd *models.StockCommand) error {
	var err error
	switch cmd.Type {
	case CommandIn:
		_, err = c.ledger.StockIn(ctx, &models.StockInRequest{
			WarehouseID: cmd.WarehouseID, ItemID: cmd.ItemID, Quantity: cmd.Quantity,
			Note: cmd.Note, ActorID: cmd.ActorID,
		})
	case CommandOut:
		_, err = c.ledger.StockOut(ctx, &models.StockOutRequest{
			WarehouseID: cmd.WarehouseID, ItemID: cmd.ItemID, Quantity: cmd.Quantity,
			Note: cmd.Note, ActorID: cmd.ActorID,
		})
	case CommandAdjust:
		_, err = c.ledger.Adjust(ctx, &models.AdjustRequest{
			WarehouseID: cmd.WarehouseID, ItemID: cmd.ItemID, NewQuantity: cmd.NewQuantity,
			Note: cmd.Note, ActorID: cmd.ActorID,
		})
	case CommandTransfer:
		_, err = c.transfers.Transfer(ctx, &models.TransferRequest{
			FromWarehouseID: cmd.WarehouseID, ToWarehouseID: *cmd.ToWarehouseID, ItemID: cmd.ItemID,
			Quantity: cmd.Quantity, Note: cmd.Note, ActorID: cmd.ActorID,
		})
	case CommandReserve, CommandRelease, CommandConfirm:
		req := &models.ReservationRequest{
			WarehouseID: cmd.WarehouseID, ItemID: cmd.ItemID, Quantity: cmd.Quantity,
			OrderID: cmd.OrderID, ActorID: cmd.ActorID,
		}
		switch cmd.Type {
		case CommandReserve:
			_, err = c.ledger.Reserve(ctx, req)
		case CommandRelease:
			_, err = c.ledger.Release(ctx, req)
		default:
			_, err = c.ledger.ConfirmReservation(ctx, req)
		}
	default:
		err = apperrors.ErrBadRequest.WithMessage("unknown command type %q", cmd.Type)
	}
	return err
}

func (c *StockCommandConsumer) count(ctx context.Context, metric, typ string) {
	if c.metrics == nil {
		return
	}
	_ = c.metrics.RecordCount(ctx, metric, map[string]string{"Type": typ})
}

// final reports whether retrying err could ever succeed. Rule violations
// are final; storage and availability failures are not.
func final(err error) bool {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code < http.StatusInternalServerError
}
