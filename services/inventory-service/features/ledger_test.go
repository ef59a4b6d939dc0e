package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
)

type ledgerTestContext struct {
	ledger     *services.StockLedger
	transfers  *services.TransferOrchestrator
	lowStock   *services.LowStockReporter
	warehouses *repository.MemoryWarehouseRepository
	settings   *repository.StaticSettingsRepository
	codes      map[string]uuid.UUID
	items      map[string]uuid.UUID
	err        error
}

func (c *ledgerTestContext) reset() {
	store := repository.NewMemoryStockStore()
	c.warehouses = repository.NewMemoryWarehouseRepository()
	c.settings = repository.NewStaticSettingsRepository(nil)
	dir := services.NewWarehouseService(c.warehouses, nil)
	c.lowStock = services.NewLowStockReporter(store, c.settings, 10, nil, nil)
	notifier := services.NewNotifier(nil, c.lowStock, nil, nil)
	c.ledger = services.NewStockLedger(store, dir, notifier, nil, nil)
	c.transfers = services.NewTransferOrchestrator(store, dir, notifier, nil, nil)
	c.codes = map[string]uuid.UUID{}
	c.items = map[string]uuid.UUID{}
	c.err = nil
}

func (c *ledgerTestContext) item(name string) uuid.UUID {
	if id, ok := c.items[name]; ok {
		return id
	}
	id := uuid.New()
	c.items[name] = id
	return id
}

func (c *ledgerTestContext) warehouse(code string, active bool) error {
	w := models.Warehouse{ID: uuid.New(), Name: code, Code: code, IsActive: active}
	c.codes[code] = w.ID
	return c.warehouses.Create(context.Background(), &w)
}

func (c *ledgerTestContext) anActiveWarehouse(code string) error   { return c.warehouse(code, true) }
func (c *ledgerTestContext) anInactiveWarehouse(code string) error { return c.warehouse(code, false) }

func (c *ledgerTestContext) theLowStockThresholdIs(n int) error {
	return c.settings.Set(context.Background(), models.SettingLowStockThreshold, fmt.Sprint(n))
}

func (c *ledgerTestContext) warehouseHolds(code string, qty int, item string) error {
	_, err := c.ledger.StockIn(context.Background(), &models.StockInRequest{
		WarehouseID: c.codes[code], ItemID: c.item(item), Quantity: int64(qty),
	})
	return err
}

func (c *ledgerTestContext) iReceive(qty int, item, code string) error {
	_, c.err = c.ledger.StockIn(context.Background(), &models.StockInRequest{
		WarehouseID: c.codes[code], ItemID: c.item(item), Quantity: int64(qty),
	})
	return nil
}

func (c *ledgerTestContext) iShip(qty int, item, code string) error {
	_, c.err = c.ledger.StockOut(context.Background(), &models.StockOutRequest{
		WarehouseID: c.codes[code], ItemID: c.item(item), Quantity: int64(qty),
	})
	return nil
}

func (c *ledgerTestContext) reservation(qty int, item, code string) *models.ReservationRequest {
	return &models.ReservationRequest{WarehouseID: c.codes[code], ItemID: c.item(item), Quantity: int64(qty), OrderID: "order-1"}
}

func (c *ledgerTestContext) iReserve(qty int, item, code string) error {
	_, c.err = c.ledger.Reserve(context.Background(), c.reservation(qty, item, code))
	return nil
}

func (c *ledgerTestContext) iConfirm(qty int, item, code string) error {
	_, c.err = c.ledger.ConfirmReservation(context.Background(), c.reservation(qty, item, code))
	return nil
}

func (c *ledgerTestContext) iTransfer(qty int, item, from, to string) error {
	_, c.err = c.transfers.Transfer(context.Background(), &models.TransferRequest{
		FromWarehouseID: c.codes[from], ToWarehouseID: c.codes[to], ItemID: c.item(item), Quantity: int64(qty),
	})
	return nil
}

func (c *ledgerTestContext) iAdjust(item, code string, qty int) error {
	n := int64(qty)
	_, c.err = c.ledger.Adjust(context.Background(), &models.AdjustRequest{
		WarehouseID: c.codes[code], ItemID: c.item(item), NewQuantity: &n,
	})
	return nil
}

func (c *ledgerTestContext) row(code, item string) (*models.StockRecord, error) {
	return c.ledger.GetByWarehouseAndItem(context.Background(), c.codes[code], c.item(item))
}

func (c *ledgerTestContext) holdsWithReserved(code string, qty int, item string, reserved int) error {
	rec, err := c.row(code, item)
	if err != nil {
		return err
	}
	if rec.Quantity != int64(qty) || rec.ReservedQuantity != int64(reserved) {
		return fmt.Errorf("expected %d on hand and %d reserved, got %d and %d", qty, reserved, rec.Quantity, rec.ReservedQuantity)
	}
	return nil
}

func (c *ledgerTestContext) hasAvailable(code string, qty int, item string) error {
	rec, err := c.row(code, item)
	if err != nil {
		return err
	}
	if rec.Available() != int64(qty) {
		return fmt.Errorf("expected %d available, got %d", qty, rec.Available())
	}
	return nil
}

func (c *ledgerTestContext) hasNoRow(code, item string) error {
	_, err := c.row(code, item)
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("expected no row, got %v", err)
	}
	return nil
}

func (c *ledgerTestContext) theOperationFailsWith(kind string) error {
	if c.err == nil {
		return errors.New("expected the operation to fail")
	}
	if got := apperrors.KindOf(c.err); string(got) != kind {
		return fmt.Errorf("expected kind %s, got %s (%v)", kind, got, c.err)
	}
	c.err = nil
	return nil
}

func (c *ledgerTestContext) logs(item string) ([]models.MovementLogEntry, error) {
	id := c.item(item)
	return c.ledger.GetLogs(context.Background(), models.LogFilter{ItemID: &id})
}

func (c *ledgerTestContext) theMovementLogHas(item string, n int) error {
	entries, err := c.logs(item)
	if err != nil {
		return err
	}
	if len(entries) != n {
		return fmt.Errorf("expected %d entries, got %d", n, len(entries))
	}
	return nil
}

func (c *ledgerTestContext) theNewestMovementIs(item, typ string, delta int) error {
	entries, err := c.logs(item)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("movement log is empty")
	}
	e := entries[0]
	if string(e.MovementType) != typ || e.QuantityDelta != int64(delta) {
		return fmt.Errorf("expected %s %d, got %s %d", typ, delta, e.MovementType, e.QuantityDelta)
	}
	return nil
}

func (c *ledgerTestContext) theLowStockReportLists(n int) error {
	ctx := context.Background()
	recs, err := c.lowStock.ListLowStock(ctx, c.lowStock.Threshold(ctx))
	if err != nil {
		return err
	}
	if len(recs) != n {
		return fmt.Errorf("expected %d low-stock rows, got %d", n, len(recs))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &ledgerTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^an active warehouse "([^"]*)"$`, tc.anActiveWarehouse)
	ctx.Step(`^an inactive warehouse "([^"]*)"$`, tc.anInactiveWarehouse)
	ctx.Step(`^the low-stock threshold is (\d+)$`, tc.theLowStockThresholdIs)
	ctx.Step(`^"([^"]*)" holds (\d+) of "([^"]*)"$`, tc.warehouseHolds)

	// When steps
	ctx.Step(`^I receive (\d+) of "([^"]*)" at "([^"]*)"$`, tc.iReceive)
	ctx.Step(`^I ship (\d+) of "([^"]*)" from "([^"]*)"$`, tc.iShip)
	ctx.Step(`^I reserve (\d+) of "([^"]*)" at "([^"]*)"$`, tc.iReserve)
	ctx.Step(`^I confirm (\d+) of "([^"]*)" at "([^"]*)"$`, tc.iConfirm)
	ctx.Step(`^I transfer (\d+) of "([^"]*)" from "([^"]*)" to "([^"]*)"$`, tc.iTransfer)
	ctx.Step(`^I adjust "([^"]*)" at "([^"]*)" to (\d+)$`, tc.iAdjust)

	// Then steps
	ctx.Step(`^"([^"]*)" holds (\d+) of "([^"]*)" with (\d+) reserved$`, tc.holdsWithReserved)
	ctx.Step(`^"([^"]*)" has (\d+) of "([^"]*)" available$`, tc.hasAvailable)
	ctx.Step(`^"([^"]*)" has no row for "([^"]*)"$`, tc.hasNoRow)
	ctx.Step(`^the operation fails with "([^"]*)"$`, tc.theOperationFailsWith)
	ctx.Step(`^the movement log for "([^"]*)" has (\d+) entries$`, tc.theMovementLogHas)
	ctx.Step(`^the newest movement for "([^"]*)" is "([^"]*)" with delta (-?\d+)$`, tc.theNewestMovementIs)
	ctx.Step(`^the low-stock report lists (\d+) rows$`, tc.theLowStockReportLists)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"ledger.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
