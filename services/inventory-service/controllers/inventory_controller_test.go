package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/stock-ledger/services/common/auth"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/controllers"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/middleware"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/routes"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

type testServer struct {
	router *gin.Engine
	east   models.Warehouse
	west   models.Warehouse
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		east: models.Warehouse{ID: uuid.New(), Name: "East", Code: "EAST", IsActive: true},
		west: models.Warehouse{ID: uuid.New(), Name: "West", Code: "WEST", IsActive: true},
	}
	store := repository.NewMemoryStockStore()
	settings := repository.NewStaticSettingsRepository(map[string]string{models.SettingLowStockThreshold: "5"})
	whs := services.NewWarehouseService(repository.NewMemoryWarehouseRepository(s.east, s.west), nil)
	lowStock := services.NewLowStockReporter(store, settings, 10, nil, nil)
	notifier := services.NewNotifier(nil, lowStock, nil, nil)

	inv := controllers.NewInventoryController(
		services.NewStockLedger(store, whs, notifier, nil, nil),
		services.NewTransferOrchestrator(store, whs, notifier, nil, nil),
		lowStock,
	)
	s.router = gin.New()
	routes.RegisterRoutes(s.router, inv, controllers.NewWarehouseController(whs),
		middleware.AuthMiddleware(auth.NewVerifier("test-secret")))
	return s
}

type call struct {
	method string
	path   string
	body   any
	role   string
	anon   bool
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if raw, ok := c.body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if !c.anon {
		req.Header.Set("X-User-ID", "user-42")
		if c.role != "" {
			req.Header.Set("X-User-Role", c.role)
		}
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *testServer) stockIn(t *testing.T, wh, item uuid.UUID, qty int) {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", body: map[string]any{
		"warehouse_id": wh, "item_id": item, "quantity": qty,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStockIn_Success(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()

	w := s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", body: map[string]any{
		"warehouse_id": s.east.ID, "item_id": item, "quantity": 9, "note": "PO-77",
	}})
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 9, body["quantity"])
	assert.EqualValues(t, 9, body["available_quantity"])
	assert.EqualValues(t, 1, body["version"])

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/logs?item_id=" + item.String()})
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.MovementLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "user-42", *logs[0].ActorID, "actor defaults to the caller")
}

func TestStockIn_Errors(t *testing.T) {
	s := setupRouter(t)

	w := s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", body: "{bad json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation", decode(t, w)["kind"])

	w = s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", body: map[string]any{
		"warehouse_id": s.east.ID, "item_id": uuid.New(), "quantity": 0,
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidQuantity", decode(t, w)["kind"])

	w = s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", body: map[string]any{
		"warehouse_id": uuid.New(), "item_id": uuid.New(), "quantity": 1,
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "WarehouseInactiveOrNotFound", decode(t, w)["kind"])

	w = s.do(t, call{method: http.MethodPost, path: "/inventory/stock-in", anon: true, body: map[string]any{}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMalformedQuantityIsInvalidQuantity(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()
	s.stockIn(t, s.east.ID, item, 4)

	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"fractional stock-in", "/inventory/stock-in", map[string]any{"warehouse_id": s.east.ID, "item_id": item, "quantity": 1.5}},
		{"string stock-out", "/inventory/stock-out", map[string]any{"warehouse_id": s.east.ID, "item_id": item, "quantity": "3"}},
		{"fractional adjust", "/inventory/adjust", map[string]any{"warehouse_id": s.east.ID, "item_id": item, "new_quantity": 2.5}},
		{"string transfer", "/inventory/transfer", map[string]any{"from_warehouse_id": s.east.ID, "to_warehouse_id": s.west.ID, "item_id": item, "quantity": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, call{method: http.MethodPost, path: tt.path, body: tt.body})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "InvalidQuantity", decode(t, w)["kind"])
		})
	}

	w := s.do(t, call{method: http.MethodGet, path: "/inventory/warehouse/" + s.east.ID.String() + "/item/" + item.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode(t, w)["quantity"])
}

func TestStockOut_Insufficient(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()
	s.stockIn(t, s.east.ID, item, 2)

	w := s.do(t, call{method: http.MethodPost, path: "/inventory/stock-out", body: map[string]any{
		"warehouse_id": s.east.ID, "item_id": item, "quantity": 3,
	}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InsufficientStock", decode(t, w)["kind"])
}

func TestAdjust(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()
	s.stockIn(t, s.east.ID, item, 4)

	w := s.do(t, call{method: http.MethodPost, path: "/inventory/adjust", body: map[string]any{
		"warehouse_id": s.east.ID, "item_id": item, "new_quantity": 0,
	}})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["quantity"])

	w = s.do(t, call{method: http.MethodPost, path: "/inventory/adjust", body: map[string]any{
		"warehouse_id": s.east.ID, "item_id": item,
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "new_quantity is required")
}

func TestTransferAndAvailability(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()
	s.stockIn(t, s.east.ID, item, 10)

	w := s.do(t, call{method: http.MethodPost, path: "/inventory/transfer", body: map[string]any{
		"from_warehouse_id": s.east.ID, "to_warehouse_id": s.west.ID, "item_id": item, "quantity": 3,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.TransferResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Len(t, res.Entries, 3)

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/item/" + item.String()})
	require.Equal(t, http.StatusOK, w.Code)
	agg := decode(t, w)
	assert.EqualValues(t, 10, agg["quantity"])
	assert.Len(t, agg["warehouses"], 2)

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/warehouse/" + s.west.ID.String() + "/item/" + item.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["quantity"])

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/warehouse/not-a-uuid/item/" + item.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/inventory/transfer", body: map[string]any{
		"from_warehouse_id": s.east.ID, "to_warehouse_id": s.west.ID, "item_id": item, "quantity": 100,
	}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InsufficientStockForTransfer", decode(t, w)["kind"])
}

func TestReservationEndpoints(t *testing.T) {
	s := setupRouter(t)
	item := uuid.New()
	s.stockIn(t, s.east.ID, item, 10)
	reserve := func(path string, qty int) *httptest.ResponseRecorder {
		return s.do(t, call{method: http.MethodPost, path: path, body: map[string]any{
			"warehouse_id": s.east.ID, "item_id": item, "quantity": qty, "order_id": "ord-1",
		}})
	}

	w := reserve("/inventory/reserve", 4)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Stock reserved successfully", body["message"])
	assert.Equal(t, "ord-1", body["order_id"])

	assert.Equal(t, http.StatusOK, reserve("/inventory/release", 1).Code)
	assert.Equal(t, http.StatusOK, reserve("/inventory/confirm", 3).Code)
	assert.Equal(t, http.StatusBadRequest, reserve("/inventory/confirm", 1).Code)

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/warehouse/" + s.east.ID.String() + "/item/" + item.String()})
	body = decode(t, w)
	assert.EqualValues(t, 7, body["quantity"])
	assert.EqualValues(t, 0, body["reserved_quantity"])
}

func TestLowStockEndpoints(t *testing.T) {
	s := setupRouter(t)
	s.stockIn(t, s.east.ID, uuid.New(), 2)
	s.stockIn(t, s.east.ID, uuid.New(), 8)

	w := s.do(t, call{method: http.MethodGet, path: "/inventory/low-stock"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 5, body["threshold"])
	assert.EqualValues(t, 1, body["count"])

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/low-stock?threshold=100"})
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/low-stock?threshold=abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPut, path: "/inventory/low-stock/threshold", body: map[string]any{"threshold": 9}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodPut, path: "/inventory/low-stock/threshold", role: auth.RoleAdmin, body: map[string]any{"threshold": 9}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/inventory/low-stock/threshold"})
	assert.EqualValues(t, 9, decode(t, w)["threshold"])
	w = s.do(t, call{method: http.MethodGet, path: "/inventory/low-stock"})
	assert.EqualValues(t, 2, decode(t, w)["count"])
}

func TestGetLogs_BadQuery(t *testing.T) {
	s := setupRouter(t)
	for _, q := range []string{"warehouse_id=x", "item_id=y", "limit=ten"} {
		w := s.do(t, call{method: http.MethodGet, path: "/inventory/logs?" + q})
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w := s.do(t, call{method: http.MethodGet, path: "/inventory/logs"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
