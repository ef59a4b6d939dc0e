package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/controllers"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/middleware"
)

// RegisterRoutes registers all inventory service routes. guard runs on
// every group after authentication (rate limiting, for instance).
func RegisterRoutes(r *gin.Engine, inv *controllers.InventoryController, wh *controllers.WarehouseController, auth gin.HandlerFunc, guard ...gin.HandlerFunc) {
	inventory := r.Group("/inventory", append([]gin.HandlerFunc{auth}, guard...)...)
	{
		inventory.GET("/item/:itemId", inv.GetByItem)
		inventory.GET("/warehouse/:warehouseId/item/:itemId", inv.GetByWarehouseAndItem)
		inventory.GET("/low-stock", inv.ListLowStock)
		inventory.GET("/low-stock/threshold", inv.GetLowStockThreshold)
		inventory.PUT("/low-stock/threshold", middleware.AdminOnly(), inv.SetLowStockThreshold)
		inventory.GET("/logs", inv.GetLogs)

		inventory.POST("/stock-in", inv.StockIn)
		inventory.POST("/stock-out", inv.StockOut)
		inventory.POST("/adjust", inv.Adjust)
		inventory.POST("/transfer", inv.Transfer)

		// Used by the order service
		inventory.POST("/reserve", inv.ReserveStock)
		inventory.POST("/release", inv.ReleaseStock)
		inventory.POST("/confirm", inv.ConfirmStock)
	}

	warehouses := r.Group("/warehouses", append([]gin.HandlerFunc{auth}, guard...)...)
	{
		warehouses.GET("", wh.List)
		warehouses.GET("/:id", wh.Get)
		warehouses.GET("/code/:code", wh.GetByCode)

		admin := warehouses.Group("", middleware.AdminOnly())
		admin.POST("", wh.Create)
		admin.PUT("/:id", wh.Update)
		admin.DELETE("/:id", wh.Delete)
	}
}
