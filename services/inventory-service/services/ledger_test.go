package services_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

func ptr[T any](v T) *T { return &v }

func TestStockIn_CreatesRowAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()

	rec, err := f.ledger.StockIn(ctx, &models.StockInRequest{
		WarehouseID: f.east.ID, ItemID: item, Quantity: 12, Note: ptr("PO-1"), ActorID: ptr("user-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), rec.Quantity)
	assert.Equal(t, int64(1), rec.Version)

	rec, err = f.ledger.StockIn(ctx, &models.StockInRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(15), rec.Quantity)
	assert.Equal(t, int64(2), rec.Version)

	logs, err := f.ledger.GetLogs(ctx, models.LogFilter{ItemID: &item})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.MovementIn, logs[1].MovementType)
	assert.Equal(t, int64(0), logs[1].QuantityBefore)
	assert.Equal(t, int64(12), logs[1].QuantityAfter)
	assert.Equal(t, "PO-1", *logs[1].Note)
	assert.Equal(t, "user-1", *logs[1].ActorID)
	assert.Equal(t, int64(2), logs[0].Version)

	assert.Len(t, f.pub.ofType(models.EventStockMoved), 2)
	assert.Equal(t, 2, f.metrics.count(awspkg.MetricStockIn))
}

func TestStockIn_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.StockInRequest
		want error
	}{
		{"zero quantity", &models.StockInRequest{WarehouseID: f.east.ID, ItemID: uuid.New()}, apperrors.ErrInvalidQuantity},
		{"negative quantity", &models.StockInRequest{WarehouseID: f.east.ID, ItemID: uuid.New(), Quantity: -1}, apperrors.ErrInvalidQuantity},
		{"missing item", &models.StockInRequest{WarehouseID: f.east.ID, Quantity: 1}, apperrors.ErrBadRequest},
		{"inactive warehouse", &models.StockInRequest{WarehouseID: f.closed.ID, ItemID: uuid.New(), Quantity: 1}, apperrors.ErrWarehouseInactiveOrNotFound},
		{"unknown warehouse", &models.StockInRequest{WarehouseID: uuid.New(), ItemID: uuid.New(), Quantity: 1}, apperrors.ErrWarehouseInactiveOrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.StockIn(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	logs, _ := f.ledger.GetLogs(ctx, models.LogFilter{})
	assert.Empty(t, logs)
	assert.Empty(t, f.pub.events)
	assert.Equal(t, 4, f.metrics.count(awspkg.MetricStockRejected))
}

func TestStockOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 10)

	rec, err := f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.Quantity)

	_, err = f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 7})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	_, err = f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.west.ID, ItemID: item, Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock, "no row means nothing available")

	got, err := f.ledger.GetByWarehouseAndItem(ctx, f.east.ID, item)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Quantity)
	assert.Equal(t, int64(2), got.Version)
}

func TestStockOut_CannotTouchReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 10)

	_, err := f.ledger.Reserve(ctx, &models.ReservationRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 8, OrderID: "o-1"})
	require.NoError(t, err)

	_, err = f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 3})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	rec, err := f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Available())
	assert.Equal(t, int64(8), rec.ReservedQuantity)
}

func TestStockOut_PublishesLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 8)

	_, err := f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 2})
	require.NoError(t, err)
	assert.Empty(t, f.pub.ofType(models.EventLowStock), "6 is not below 5")

	_, err = f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 2})
	require.NoError(t, err)
	low := f.pub.ofType(models.EventLowStock)
	require.Len(t, low, 1)
	ev := low[0].payload.(models.LowStockEvent)
	assert.Equal(t, int64(4), ev.Available)
	assert.Equal(t, int64(5), ev.Threshold)
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricInventoryLow))
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 10)
	_, err := f.ledger.Reserve(ctx, &models.ReservationRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 3})
	require.NoError(t, err)

	rec, err := f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.east.ID, ItemID: item, NewQuantity: ptr(int64(7)), Note: ptr("cycle count")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Quantity)
	assert.Equal(t, int64(3), rec.ReservedQuantity)

	logs, _ := f.ledger.GetLogs(ctx, models.LogFilter{ItemID: &item, Limit: 1})
	require.Len(t, logs, 1)
	assert.Equal(t, models.MovementAdjustment, logs[0].MovementType)
	assert.Equal(t, int64(-3), logs[0].QuantityDelta)

	_, err = f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.east.ID, ItemID: item, NewQuantity: ptr(int64(2))})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity, "cannot drop below reserved")

	_, err = f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.east.ID, ItemID: item})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	_, err = f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.east.ID, ItemID: item, NewQuantity: ptr(int64(-1))})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	_, err = f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.west.ID, ItemID: item, NewQuantity: ptr(int64(5))})
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "adjust never creates a row")

	rec, err = f.ledger.Adjust(ctx, &models.AdjustRequest{WarehouseID: f.east.ID, ItemID: item, NewQuantity: ptr(int64(3))})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Available())
}

func TestReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 10)
	req := func(q int64) *models.ReservationRequest {
		return &models.ReservationRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: q, OrderID: "order-9"}
	}

	rec, err := f.ledger.Reserve(ctx, req(6))
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.ReservedQuantity)
	assert.Equal(t, int64(4), rec.Available())

	_, err = f.ledger.Reserve(ctx, req(5))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	rec, err = f.ledger.Release(ctx, req(2))
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.ReservedQuantity)

	_, err = f.ledger.Release(ctx, req(5))
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	rec, err = f.ledger.ConfirmReservation(ctx, req(3))
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Quantity)
	assert.Equal(t, int64(1), rec.ReservedQuantity)

	_, err = f.ledger.ConfirmReservation(ctx, req(2))
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)

	logs, _ := f.ledger.GetLogs(ctx, models.LogFilter{ItemID: &item})
	require.Len(t, logs, 2, "only the stock-in and the confirmation move on-hand stock")
	assert.Equal(t, models.MovementOut, logs[0].MovementType)
	assert.Equal(t, "Order order-9 confirmed", *logs[0].Note)

	_, err = f.ledger.Reserve(ctx, &models.ReservationRequest{WarehouseID: f.west.ID, ItemID: item, Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

func TestGetItemAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 10)
	f.stockIn(t, f.west.ID, item, 5)
	_, err := f.ledger.Reserve(ctx, &models.ReservationRequest{WarehouseID: f.west.ID, ItemID: item, Quantity: 2})
	require.NoError(t, err)

	agg, err := f.ledger.GetItemAvailability(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(15), agg.Quantity)
	assert.Equal(t, int64(2), agg.Reserved)
	assert.Equal(t, int64(13), agg.Available)
	assert.Len(t, agg.Warehouses, 2)

	empty, err := f.ledger.GetItemAvailability(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty.Warehouses)
	assert.Zero(t, empty.Available)

	_, err = f.ledger.GetByWarehouseAndItem(ctx, f.east.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetLogs_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t)
	logs, err := f.ledger.GetLogs(context.Background(), models.LogFilter{})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = assert.AnError
	item := uuid.New()

	rec := f.stockIn(t, f.east.ID, item, 3)
	assert.Equal(t, int64(3), rec.Quantity)
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricEventPublishFailures))

	got, err := f.ledger.GetByWarehouseAndItem(context.Background(), f.east.ID, item)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Quantity)
}

func TestStoreErrorsAreTranslated(t *testing.T) {
	f := newFixture(t)
	dir := services.NewWarehouseService(repository.NewMemoryWarehouseRepository(f.east), nil)

	busy := services.NewStockLedger(failingStore{err: repository.ErrConflict}, dir, nil, nil, nil)
	_, err := busy.StockIn(context.Background(), &models.StockInRequest{WarehouseID: f.east.ID, ItemID: uuid.New(), Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)

	down := services.NewStockLedger(failingStore{err: errStoreDown}, dir, nil, nil, nil)
	_, err = down.StockIn(context.Background(), &models.StockInRequest{WarehouseID: f.east.ID, ItemID: uuid.New(), Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInternalServer)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestCancelledRequestCommitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	item := uuid.New()

	_, err := f.ledger.StockIn(ctx, &models.StockInRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 5})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)

	_, err = f.ledger.GetByWarehouseAndItem(context.Background(), f.east.ID, item)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentStockOutNeverOversells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := uuid.New()
	f.stockIn(t, f.east.ID, item, 20)

	var ok, insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.StockOut(ctx, &models.StockOutRequest{WarehouseID: f.east.ID, ItemID: item, Quantity: 1})
			switch {
			case err == nil:
				ok.Add(1)
			case apperrors.KindOf(err) == apperrors.KindInsufficientStock:
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), ok.Load())
	assert.Equal(t, int32(30), insufficient.Load())

	rec, err := f.ledger.GetByWarehouseAndItem(ctx, f.east.ID, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Quantity)
	assert.Equal(t, int64(21), rec.Version)

	logs, _ := f.ledger.GetLogs(ctx, models.LogFilter{ItemID: &item})
	assert.Len(t, logs, 21)
}
