package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/middleware"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

// InventoryController handles HTTP requests for the stock ledger
type InventoryController struct {
	ledger    *services.StockLedger
	transfers *services.TransferOrchestrator
	lowStock  *services.LowStockReporter
}

// NewInventoryController creates a new InventoryController
func NewInventoryController(ledger *services.StockLedger, transfers *services.TransferOrchestrator, lowStock *services.LowStockReporter) *InventoryController {
	return &InventoryController{ledger: ledger, transfers: transfers, lowStock: lowStock}
}

// GetByItem returns an item's stock across warehouses with totals
// GET /inventory/item/:itemId
func (ic *InventoryController) GetByItem(c *gin.Context) {
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return
	}

	agg, err := ic.ledger.GetItemAvailability(c.Request.Context(), itemID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// GetByWarehouseAndItem returns one stock row
// GET /inventory/warehouse/:warehouseId/item/:itemId
func (ic *InventoryController) GetByWarehouseAndItem(c *gin.Context) {
	warehouseID, ok := uuidParam(c, "warehouseId")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return
	}

	rec, err := ic.ledger.GetByWarehouseAndItem(c.Request.Context(), warehouseID, itemID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListLowStock lists rows below a threshold; the configured one when the
// query parameter is omitted.
// GET /inventory/low-stock?threshold=N
func (ic *InventoryController) ListLowStock(c *gin.Context) {
	ctx := c.Request.Context()

	var threshold int64
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrBadRequest.WithMessage("threshold must be an integer"))
			return
		}
		threshold = v
	} else {
		threshold = ic.lowStock.Threshold(ctx)
	}

	recs, err := ic.lowStock.ListLowStock(ctx, threshold)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"threshold": threshold,
		"count":     len(recs),
		"items":     recs,
	})
}

// GetLowStockThreshold
// GET /inventory/low-stock/threshold
func (ic *InventoryController) GetLowStockThreshold(c *gin.Context) {
	threshold := ic.lowStock.Threshold(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"threshold": threshold})
}

// SetLowStockThreshold
// PUT /inventory/low-stock/threshold
func (ic *InventoryController) SetLowStockThreshold(c *gin.Context) {
	var req struct {
		Threshold int64 `json:"threshold" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := ic.lowStock.SetLowStockThreshold(c.Request.Context(), req.Threshold); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": req.Threshold})
}

// StockIn
// POST /inventory/stock-in
func (ic *InventoryController) StockIn(c *gin.Context) {
	var req models.StockInRequest
	if !bind(c, &req) {
		return
	}
	req.ActorID = actorOr(c, req.ActorID)

	rec, err := ic.ledger.StockIn(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StockOut
// POST /inventory/stock-out
func (ic *InventoryController) StockOut(c *gin.Context) {
	var req models.StockOutRequest
	if !bind(c, &req) {
		return
	}
	req.ActorID = actorOr(c, req.ActorID)

	rec, err := ic.ledger.StockOut(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Adjust sets an absolute on-hand quantity
// POST /inventory/adjust
func (ic *InventoryController) Adjust(c *gin.Context) {
	var req models.AdjustRequest
	if !bind(c, &req) {
		return
	}
	req.ActorID = actorOr(c, req.ActorID)

	rec, err := ic.ledger.Adjust(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Transfer moves stock between warehouses
// POST /inventory/transfer
func (ic *InventoryController) Transfer(c *gin.Context) {
	var req models.TransferRequest
	if !bind(c, &req) {
		return
	}
	req.ActorID = actorOr(c, req.ActorID)

	res, err := ic.transfers.Transfer(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ReserveStock earmarks stock for an order
// POST /inventory/reserve
func (ic *InventoryController) ReserveStock(c *gin.Context) {
	ic.reservation(c, ic.ledger.Reserve, "Stock reserved successfully")
}

// ReleaseStock returns reserved stock to available
// POST /inventory/release
func (ic *InventoryController) ReleaseStock(c *gin.Context) {
	ic.reservation(c, ic.ledger.Release, "Stock released successfully")
}

// ConfirmStock ships reserved stock (payment succeeded)
// POST /inventory/confirm
func (ic *InventoryController) ConfirmStock(c *gin.Context) {
	ic.reservation(c, ic.ledger.ConfirmReservation, "Stock confirmed successfully")
}

func (ic *InventoryController) reservation(c *gin.Context, op func(ctx context.Context, req *models.ReservationRequest) (*models.StockRecord, error), message string) {
	var req models.ReservationRequest
	if !bind(c, &req) {
		return
	}
	req.ActorID = actorOr(c, req.ActorID)

	rec, err := op(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  message,
		"order_id": req.OrderID,
		"stock":    rec,
	})
}

// GetLogs returns movement log entries, newest first
// GET /inventory/logs?warehouse_id=&item_id=&limit=
func (ic *InventoryController) GetLogs(c *gin.Context) {
	var filter models.LogFilter

	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrBadRequest.WithMessage("warehouse_id must be a UUID"))
			return
		}
		filter.WarehouseID = &id
	}
	if raw := c.Query("item_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrBadRequest.WithMessage("item_id must be a UUID"))
			return
		}
		filter.ItemID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrBadRequest.WithMessage("limit must be an integer"))
			return
		}
		filter.Limit = n
	}

	entries, err := ic.ledger.GetLogs(c.Request.Context(), filter)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// quantityFields are reported as InvalidQuantity when they do not decode
// as integers, so a malformed quantity is not a generic validation error.
var quantityFields = map[string]bool{"quantity": true, "new_quantity": true}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && quantityFields[typeErr.Field] {
			apperrors.Respond(c, apperrors.ErrInvalidQuantity.WithMessage("%s must be an integer, got %s", typeErr.Field, typeErr.Value))
			return false
		}
		apperrors.Respond(c, apperrors.ErrValidation.WithMessage("Invalid request: %v", err))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.Respond(c, apperrors.ErrBadRequest.WithMessage("%s must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// actorOr keeps an explicit actor and otherwise attributes the change to
// the authenticated caller.
func actorOr(c *gin.Context, actor *string) *string {
	if actor != nil && *actor != "" {
		return actor
	}
	if id, err := middleware.GetUserID(c); err == nil {
		return &id
	}
	return nil
}
