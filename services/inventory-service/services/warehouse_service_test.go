package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

func TestWarehouseService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := services.NewWarehouseService(repository.NewMemoryWarehouseRepository(), nil)

	w, err := svc.Create(ctx, &models.CreateWarehouseRequest{Name: "  Main  ", Code: " MAIN "})
	require.NoError(t, err)
	assert.Equal(t, "Main", w.Name)
	assert.Equal(t, "MAIN", w.Code)
	assert.True(t, w.IsActive)

	_, err = svc.Create(ctx, &models.CreateWarehouseRequest{Name: "Other", Code: "MAIN"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateWarehouseCode)

	_, err = svc.Create(ctx, &models.CreateWarehouseRequest{Name: " ", Code: "X"})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	got, err := svc.GetByCode(ctx, "MAIN")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	updated, err := svc.Update(ctx, w.ID, &models.UpdateWarehouseRequest{Name: ptr("Main DC"), Phone: ptr("555-0100")})
	require.NoError(t, err)
	assert.Equal(t, "Main DC", updated.Name)
	assert.Equal(t, "MAIN", updated.Code)
	assert.Equal(t, "555-0100", *updated.Phone)

	_, err = svc.Update(ctx, w.ID, &models.UpdateWarehouseRequest{Code: ptr("")})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	require.NoError(t, svc.Deactivate(ctx, w.ID))

	_, err = svc.GetByCode(ctx, "MAIN")
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "inactive warehouses are hidden by code")

	byID, err := svc.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, byID.IsActive)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.NotNil(t, active)
	assert.Empty(t, active)
}

func TestWarehouseService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc := services.NewWarehouseService(repository.NewMemoryWarehouseRepository(), nil)

	_, err := svc.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Update(ctx, uuid.New(), &models.UpdateWarehouseRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, svc.Deactivate(ctx, uuid.New()), apperrors.ErrNotFound)
}

func TestWarehouseService_DuplicateCodeOnUpdate(t *testing.T) {
	ctx := context.Background()
	svc := services.NewWarehouseService(repository.NewMemoryWarehouseRepository(), nil)
	a, err := svc.Create(ctx, &models.CreateWarehouseRequest{Name: "A", Code: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &models.CreateWarehouseRequest{Name: "B", Code: "B"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, &models.UpdateWarehouseRequest{Code: ptr("B")})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateWarehouseCode)
}

func TestDeactivatedWarehouseRejectsMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	whs := repository.NewMemoryWarehouseRepository(f.east)
	dir := services.NewWarehouseService(whs, nil)
	ledger := services.NewStockLedger(f.store, dir, nil, nil, nil)
	item := uuid.New()

	_, err := ledger.StockIn(ctx, &models.StockInRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 5})
	require.NoError(t, err)

	require.NoError(t, dir.Deactivate(ctx, f.east.ID))
	_, err = ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrWarehouseInactiveOrNotFound)

	rec, err := ledger.GetByWarehouseAndItem(ctx, f.east.ID, item)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Quantity, "history and rows survive deactivation")
}
