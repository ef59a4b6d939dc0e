package controllers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/stock-ledger/services/common/auth"
)

func TestWarehouseEndpoints(t *testing.T) {
	s := setupRouter(t)

	w := s.do(t, call{method: http.MethodGet, path: "/warehouses"})
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "East", list[0]["name"])

	w = s.do(t, call{method: http.MethodPost, path: "/warehouses", body: map[string]any{"name": "North", "code": "NORTH"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/warehouses", role: auth.RoleAdmin, body: map[string]any{"name": "North", "code": "NORTH"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = s.do(t, call{method: http.MethodPost, path: "/warehouses", role: auth.RoleAdmin, body: map[string]any{"name": "Again", "code": "NORTH"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateWarehouseCode", decode(t, w)["kind"])

	w = s.do(t, call{method: http.MethodPost, path: "/warehouses", role: auth.RoleAdmin, body: map[string]any{"code": "NONAME"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/warehouses/code/NORTH"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = s.do(t, call{method: http.MethodPut, path: "/warehouses/" + id, role: auth.RoleAdmin, body: map[string]any{"name": "North DC"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "North DC", decode(t, w)["name"])

	w = s.do(t, call{method: http.MethodDelete, path: "/warehouses/" + id, role: auth.RoleAdmin})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/warehouses/code/NORTH"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/warehouses/" + id})
	require.Equal(t, http.StatusOK, w.Code, "deactivated warehouses are still readable by id")
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = s.do(t, call{method: http.MethodGet, path: "/warehouses/not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
