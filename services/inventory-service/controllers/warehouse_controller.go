package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

type WarehouseController struct {
	service *services.WarehouseService
}

func NewWarehouseController(service *services.WarehouseService) *WarehouseController {
	return &WarehouseController{service: service}
}

// List returns active warehouses ordered by name
// GET /warehouses
func (wc *WarehouseController) List(c *gin.Context) {
	ws, err := wc.service.ListActive(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// GET /warehouses/:id
func (wc *WarehouseController) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	w, err := wc.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /warehouses/code/:code
func (wc *WarehouseController) GetByCode(c *gin.Context) {
	w, err := wc.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// POST /warehouses
func (wc *WarehouseController) Create(c *gin.Context) {
	var req models.CreateWarehouseRequest
	if !bind(c, &req) {
		return
	}
	w, err := wc.service.Create(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// PUT /warehouses/:id
func (wc *WarehouseController) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateWarehouseRequest
	if !bind(c, &req) {
		return
	}
	w, err := wc.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete soft-disables the warehouse
// DELETE /warehouses/:id
func (wc *WarehouseController) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := wc.service.Deactivate(c.Request.Context(), id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Warehouse deactivated"})
}
